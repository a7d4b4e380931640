package components

import (
	"strings"

	"previewchat/internal/models"
	"previewchat/ui/styles"
)

func RenderStatus(view models.AppModel) string {
	statusContent := view.Status
	if view.BotTyping || view.Phase != models.Idle {
		statusContent += strings.Repeat(".", view.LoadingDots)
	}

	return styles.StatusStyle(view.Width).Render(statusContent)
}
