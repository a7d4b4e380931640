package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"previewchat/internal/dispatcher"
	"previewchat/internal/eventbus"
	"previewchat/internal/models"
	"previewchat/internal/update"
	"previewchat/ui/components"
)

// AppModel is the Bubble Tea model: the view projection plus local input
// widgets. All business state arrives from core as snapshots.
type AppModel struct {
	view       models.AppModel
	input      textinput.Model
	dispatcher *dispatcher.EventDispatcher

	// connectID is the preview id supplied on the command line, used on the
	// next connect so an operator can resume an existing session.
	connectID string
}

func newAppModel(disp *dispatcher.EventDispatcher, connectID string) *AppModel {
	input := textinput.New()
	input.Placeholder = "Ctrl+O to connect"
	input.CharLimit = 512
	input.Focus()

	return &AppModel{
		view:       models.AppModel{Status: update.StatusLine(models.AppModel{})},
		input:      input,
		dispatcher: disp,
		connectID:  connectID,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		update.TickCmd(),
		m.dispatcher.ListenForCoreEvents(),
	)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case update.CoreEventMsg:
		cmd := update.ApplyCoreEvent(&m.view, msg)
		m.input.Placeholder = update.Placeholder(m.view)
		return m, tea.Batch(cmd, m.dispatcher.ListenForCoreEvents())

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		update.HandleWindowSizeMsg(&m.view, msg)
		m.input.Width = msg.Width - 8
		return m, nil

	case update.TickMsg:
		update.HandleTickMsg(&m.view)
		return m, update.TickCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	eb := m.dispatcher.GetEventBus()

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+o":
		if err := eb.SendToCore(eventbus.ConnectEvent{PreviewID: m.connectID}); err != nil {
			m.view.Status = "Error: " + err.Error()
		}
		return m, nil

	case "ctrl+d":
		if err := eb.SendToCore(eventbus.DisconnectEvent{}); err != nil {
			m.view.Status = "Error: " + err.Error()
		}
		return m, nil

	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" || !m.view.InputEnabled() {
			return m, nil
		}
		if err := eb.SendToCore(eventbus.SendMessageEvent{Message: content}); err != nil {
			m.view.Status = "Error sending message: " + err.Error()
			return m, nil
		}
		m.input.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(components.RenderMessages(m.view))
	b.WriteString(components.RenderProgress(m.view))
	b.WriteString(components.RenderPreview(m.view))
	b.WriteString(components.RenderInput(m.input.View(), m.view.Width))
	b.WriteString("\n")
	b.WriteString(components.RenderStatus(m.view))

	return b.String()
}
