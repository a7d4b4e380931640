package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"previewchat/internal/config"
	"previewchat/internal/eventbus"
	"previewchat/internal/models"
	"previewchat/internal/protocol"
	"previewchat/internal/publish"
	"previewchat/internal/ws"
)

const (
	// initiateTimeout bounds the wait for a previewInitiated response.
	initiateTimeout = 15 * time.Second
	// publishSettleDelay lets trailing stream events land before the publish
	// request goes out.
	publishSettleDelay = 100 * time.Millisecond
)

// Publisher is the slice of the publish client the session needs.
type Publisher interface {
	Create(ctx context.Context, previewID string) (publish.CreateResult, error)
	TaskStatus(ctx context.Context, taskID string) (publish.Task, error)
}

// frameEvent carries one socket frame tagged with the connection generation
// it arrived on. Frames from a superseded connection are dropped.
type frameEvent struct {
	gen   int
	frame ws.Frame
}

// timerEvent runs a deferred closure on the session loop. Staleness checks
// live inside the closure.
type timerEvent struct {
	fn func()
}

// Session owns the connection handle, the state machine and the publish
// poller. Both asynchronous sources (socket frames and timers) are funneled
// through one channel, so every handler runs to completion before the next
// event is processed.
type Session struct {
	cfg       *config.Config
	state     *SessionState
	bus       *eventbus.EventBus
	publisher Publisher
	dial      ws.Dialer
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan any

	conn   ws.Transport
	gen    int
	poller *publish.Poller

	// after schedules a closure onto the event loop. Swapped out in tests
	// for deterministic stepping.
	after func(d time.Duration, fn func())
}

func NewSession(cfg *config.Config, eb *eventbus.EventBus, publisher Publisher, dial ws.Dialer, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:       cfg,
		state:     NewSessionState(),
		bus:       eb,
		publisher: publisher,
		dial:      dial,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan any, 64),
	}
	s.after = s.scheduleAfter

	s.addWelcomeMessages(cfg)
	return s
}

// Start runs the session loop in a goroutine.
func (s *Session) Start() {
	s.pushState()
	go s.eventLoop()
}

func (s *Session) Stop() {
	s.cancel()
}

func (s *Session) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			if s.conn != nil {
				s.conn.Close()
			}
			return
		case event, ok := <-s.bus.UIToCore():
			if !ok {
				return
			}
			s.handleUIEvent(event)
		case event := <-s.events:
			s.handleInternalEvent(event)
		}
	}
}

func (s *Session) handleUIEvent(event eventbus.UIEvent) {
	switch e := event.(type) {
	case eventbus.ConnectEvent:
		s.handleConnect(e.PreviewID)
	case eventbus.DisconnectEvent:
		s.handleDisconnect()
	case eventbus.SendMessageEvent:
		s.handleSendMessage(e.Message)
	}
}

func (s *Session) handleInternalEvent(event any) {
	switch e := event.(type) {
	case frameEvent:
		s.handleFrame(e)
	case timerEvent:
		e.fn()
	}
}

func (s *Session) scheduleAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case s.events <- timerEvent{fn: fn}:
		case <-s.ctx.Done():
		}
	})
}

// handleConnect opens the realtime channel. A connect while already open is
// a no-op; a stale non-open handle is torn down first.
func (s *Session) handleConnect(previewID string) {
	if s.conn != nil && s.state.ConnState() == models.Connected {
		s.log.Info("connect requested while already connected, ignoring")
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	s.state.SetConnState(models.Connecting)
	s.pushState()

	url := s.cfg.GetWebsocketURL()
	conn, err := s.dial(s.ctx, url)
	if err != nil {
		s.log.Error("failed to connect", zap.String("url", url), zap.Error(err))
		s.state.DropConnection(models.Errored)
		s.state.AddProgress("❌ Connection failed: " + err.Error())
		s.pushState()
		return
	}

	s.gen++
	s.conn = conn
	s.poller = nil
	s.state.ResetForConnect()
	s.state.SetConnState(models.Connected)
	s.state.AddProgress("✅ WebSocket connected")

	go s.forwardFrames(s.gen, conn.Frames())

	if previewID != "" {
		s.state.SetPreviewID(previewID)
		s.state.AddProgress("📋 Using existing Preview ID: " + previewID)
		s.pushState()
		return
	}

	s.initiatePreview()
	s.pushState()
}

// initiatePreview requests a fresh preview session and arms the correlated
// timeout. Failure is a progress entry, never fatal.
func (s *Session) initiatePreview() {
	s.state.SetPhase(models.Initiating)
	s.state.AddProgress("🔄 Initiating new preview session...")

	if err := s.conn.Send(protocol.Outbound{
		Action:    protocol.ActionInitiatePreview,
		ProjectID: s.cfg.GetProjectID(),
	}); err != nil {
		s.log.Error("failed to send initiatePreview", zap.Error(err))
		s.state.AddProgress("❌ Failed to initiate preview: " + err.Error())
		s.state.SetPhase(models.Idle)
		return
	}

	gen := s.gen
	s.after(initiateTimeout, func() {
		if gen != s.gen || s.state.Phase() != models.Initiating {
			return
		}
		s.state.AddProgress("❌ Timeout waiting for preview initiation")
		s.state.SetPhase(models.Idle)
		s.pushState()
	})
}

func (s *Session) handleDisconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.gen++
	s.poller = nil
	s.state.DropConnection(models.Disconnected)
	s.pushState()
}

// forwardFrames moves frames from the read pump onto the session loop,
// tagged with the generation they belong to.
func (s *Session) forwardFrames(gen int, frames <-chan ws.Frame) {
	for frame := range frames {
		select {
		case s.events <- frameEvent{gen: gen, frame: frame}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(e frameEvent) {
	if e.gen != s.gen {
		s.log.Debug("dropping frame from superseded connection", zap.Int("gen", e.gen))
		return
	}

	if e.frame.Err != nil {
		s.conn = nil
		s.gen++
		s.poller = nil
		s.state.DropConnection(models.Disconnected)
		s.state.AddProgress("Connection closed")
		s.pushState()
		return
	}

	env, err := protocol.Decode(e.frame.Data)
	if err != nil {
		s.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	s.applyEnvelope(env)
	s.pushState()
}

// handleSendMessage classifies the input against any pending confirmation,
// then forwards it unchanged. Sends while not connected are rejected and
// logged, never silently dropped.
func (s *Session) handleSendMessage(content string) {
	if s.state.ConnState() != models.Connected || s.conn == nil {
		s.log.Warn("rejecting send while not connected")
		s.state.AddProgress("❌ Cannot send: not connected")
		s.pushState()
		return
	}
	if s.state.Phase() != models.Idle {
		s.log.Warn("rejecting send while busy", zap.String("phase", s.state.Phase().String()))
		return
	}

	if verdict, clear := Classify(content, s.state.PendingToken()); clear {
		s.state.SetPendingToken("")
		switch verdict {
		case VerdictAffirm:
			s.state.AddProgress("✅ Confirmed - executing changes...")
		case VerdictReject:
			s.state.AddProgress("❌ Action cancelled by user")
		}
	}

	s.poller = nil
	s.state.StartRequest(content)
	preview := truncate(content, 50)
	s.state.AddProgress(`💬 Processing: "` + preview + `"`)

	if err := s.conn.Send(protocol.Outbound{
		Action:    protocol.ActionSendMessage,
		ProjectID: s.cfg.GetProjectID(),
		PreviewID: s.state.PreviewID(),
		Content:   content,
	}); err != nil {
		s.log.Error("failed to send message", zap.Error(err))
		s.state.AddProgress("❌ Failed to send message: " + err.Error())
		s.state.SetBotTyping(false)
		s.state.SetPhase(models.Idle)
	}
	s.pushState()
}

func (s *Session) pushState() {
	snap := s.state.Snapshot()
	if err := s.bus.SendToUI(eventbus.StateUpdateEvent{
		Messages:      snap.Messages,
		StreamingText: snap.StreamingText,
		BotTyping:     snap.BotTyping,
		Progress:      snap.Progress,
		ConnState:     snap.ConnState,
		Phase:         snap.Phase,
		PreviewID:     snap.PreviewID,
		PreviewURL:    snap.PreviewURL,
		PendingToken:  snap.PendingToken,
	}); err != nil {
		s.log.Warn("failed to push state to UI", zap.Error(err))
	}
}

func (s *Session) addWelcomeMessages(cfg *config.Config) {
	s.state.AddProgramMessage("-- PREVIEWCHAT --")

	if cfg.IsValid() {
		s.state.AddProgramMessage("Profile: " + cfg.ActiveProfile + " [OK]")
		s.state.AddProgramMessage("Press Ctrl+O to connect, then type your message and press Enter")
	} else {
		s.state.AddProgramMessage("Profile: " + cfg.ActiveProfile + " [NOT CONFIGURED]")
		s.state.AddProgramMessage("Configure an endpoint profile to start:")
		s.state.AddProgramMessage("• Run: previewchat profile add <name>")
		s.state.AddProgramMessage("• Or edit: ~/.previewchat/config.json")
	}

	s.state.AddProgramMessage("Controls: Ctrl+O connect, Ctrl+D disconnect, Ctrl+C quit")
	s.state.AddProgramMessage("")
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
