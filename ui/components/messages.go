package components

import (
	"strings"

	"previewchat/internal/models"
	"previewchat/ui/styles"
)

func RenderMessages(view models.AppModel) string {
	var b strings.Builder

	userStyle := styles.UserStyle()
	botStyle := styles.BotStyle()
	programStyle := styles.ProgramStyle()

	for _, msg := range view.Messages {
		switch msg.Sender {
		case models.User:
			b.WriteString(userStyle.Render("You: "+msg.Text) + "\n\n")
		case models.Bot:
			b.WriteString(botStyle.Render("AI: "+msg.Text) + "\n\n")
		case models.Program:
			b.WriteString(programStyle.Render(msg.Text) + "\n\n")
		}
	}

	if view.StreamingText != "" {
		b.WriteString(botStyle.Render("AI: "+view.StreamingText) + "\n\n")
	} else if view.BotTyping {
		b.WriteString(botStyle.Render("AI: "+strings.Repeat(".", view.LoadingDots+1)) + "\n\n")
	}

	return b.String()
}
