package components

import (
	"strings"

	"previewchat/internal/models"
	"previewchat/ui/styles"
)

// RenderProgress draws the process log panel, most recent entries last.
func RenderProgress(view models.AppModel) string {
	if len(view.Progress) == 0 {
		return ""
	}

	style := styles.ProgressStyle()

	var b strings.Builder
	b.WriteString(style.Render("── Process Log ──") + "\n")
	entries := view.Progress
	if len(entries) > 8 {
		entries = entries[len(entries)-8:]
	}
	for _, entry := range entries {
		b.WriteString(style.Render(entry.Time+"  "+entry.Message) + "\n")
	}
	return b.String()
}

// RenderPreview shows the published destination once a publish lands.
func RenderPreview(view models.AppModel) string {
	if view.PreviewURL == "" {
		return ""
	}
	return styles.PreviewStyle().Render("Preview: "+view.PreviewURL) + "\n"
}
