package update

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"previewchat/internal/eventbus"
	"previewchat/internal/models"
)

// CoreEventMsg wraps core events for Bubble Tea
type CoreEventMsg struct {
	Event eventbus.CoreEvent
}

// ApplyCoreEvent folds a core event into the UI projection.
func ApplyCoreEvent(view *models.AppModel, msg CoreEventMsg) tea.Cmd {
	switch event := msg.Event.(type) {
	case eventbus.StateUpdateEvent:
		view.Messages = event.Messages
		view.StreamingText = event.StreamingText
		view.BotTyping = event.BotTyping
		view.Progress = event.Progress
		view.ConnState = event.ConnState
		view.Phase = event.Phase
		view.PreviewID = event.PreviewID
		view.PreviewURL = event.PreviewURL
		view.PendingToken = event.PendingToken
		view.Status = StatusLine(*view)
	}
	return nil
}

// StatusLine derives the status bar text from the projection.
func StatusLine(view models.AppModel) string {
	status := view.ConnState.String()
	if view.ConnState == models.Connected {
		status += " | " + view.Phase.String()
		if view.PreviewID != "" {
			status += " | ID: " + view.PreviewID
		}
	}
	return status
}

// Placeholder derives the input placeholder, hinting at a pending
// confirmation code when one is outstanding.
func Placeholder(view models.AppModel) string {
	if view.PendingToken != "" {
		return "Reply confirm / cancel (code " + view.PendingToken + ")"
	}
	if view.ConnState != models.Connected {
		return "Ctrl+O to connect"
	}
	return "Type your message..."
}

func HandleWindowSizeMsg(view *models.AppModel, sizeMsg tea.WindowSizeMsg) {
	view.Width = sizeMsg.Width
	view.Height = sizeMsg.Height
}

// TickMsg drives the loading-dots animation.
type TickMsg struct{}

func TickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func HandleTickMsg(view *models.AppModel) {
	if view.BotTyping || view.Phase != models.Idle {
		view.LoadingDots = (view.LoadingDots + 1) % 4
	}
}
