package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"previewchat/internal/config"
	"previewchat/internal/core"
	"previewchat/internal/dispatcher"
	"previewchat/internal/eventbus"
	"previewchat/internal/logging"
	"previewchat/internal/publish"
	"previewchat/internal/ws"
)

// Application wires config, logging, the event bus, the core session and
// the Bubble Tea UI together and manages their lifecycle.
type Application struct {
	config     *config.Config
	log        *zap.Logger
	eventBus   *eventbus.EventBus
	dispatcher *dispatcher.EventDispatcher
	session    *core.Session
	model      *AppModel
}

// NewApplication builds the app from the on-disk config.
func NewApplication(previewID string) (*Application, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewApplicationWithConfig(cfg, previewID)
}

// NewApplicationWithConfig builds the app against an explicit config, used
// by demo mode.
func NewApplicationWithConfig(cfg *config.Config, previewID string) (*Application, error) {
	log, err := logging.New()
	if err != nil {
		// Logging must never block startup; fall back to a no-op logger.
		log = logging.Nop()
	}

	eb := eventbus.NewEventBus()
	disp := dispatcher.NewEventDispatcher(eb)

	publisher := publish.NewClient(cfg.GetPublishURL(), log.Named("publish"))
	dial := func(ctx context.Context, url string) (ws.Transport, error) {
		return ws.Dial(ctx, url, log.Named("ws"))
	}

	session := core.NewSession(cfg, eb, publisher, dial, log.Named("core"))

	return &Application{
		config:     cfg,
		log:        log,
		eventBus:   eb,
		dispatcher: disp,
		session:    session,
		model:      newAppModel(disp, previewID),
	}, nil
}

func (app *Application) Start() error {
	app.session.Start()

	p := tea.NewProgram(app.model)
	_, err := p.Run()

	return err
}

func (app *Application) Stop() {
	app.session.Stop()
	app.dispatcher.Stop()
	app.eventBus.Close()
	app.log.Sync()
}
