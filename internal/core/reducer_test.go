package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previewchat/internal/config"
	"previewchat/internal/eventbus"
	"previewchat/internal/logging"
	"previewchat/internal/models"
	"previewchat/internal/protocol"
	"previewchat/internal/publish"
	"previewchat/internal/ws"
)

// timerQueue replaces the session's timer scheduling so tests can fire
// deferred closures deterministically.
type timerQueue struct {
	fns []func()
}

func (q *timerQueue) add(_ time.Duration, fn func()) {
	q.fns = append(q.fns, fn)
}

func (q *timerQueue) fire() bool {
	if len(q.fns) == 0 {
		return false
	}
	fn := q.fns[0]
	q.fns = q.fns[1:]
	fn()
	return true
}

func (q *timerQueue) fireAll() {
	for q.fire() {
	}
}

type fakePublisher struct {
	createFn    func(ctx context.Context, previewID string) (publish.CreateResult, error)
	statusFn    func(ctx context.Context, taskID string) (publish.Task, error)
	createCalls int
	statusCalls int
}

func (f *fakePublisher) Create(ctx context.Context, previewID string) (publish.CreateResult, error) {
	f.createCalls++
	if f.createFn == nil {
		return publish.CreateResult{}, errors.New("no createFn")
	}
	return f.createFn(ctx, previewID)
}

func (f *fakePublisher) TaskStatus(ctx context.Context, taskID string) (publish.Task, error) {
	f.statusCalls++
	if f.statusFn == nil {
		return publish.Task{}, errors.New("no statusFn")
	}
	return f.statusFn(ctx, taskID)
}

type fakeConn struct {
	sent   []protocol.Outbound
	frames chan ws.Frame
	closed bool
}

func (c *fakeConn) Send(v any) error {
	if out, ok := v.(protocol.Outbound); ok {
		c.sent = append(c.sent, out)
	}
	return nil
}

func (c *fakeConn) Close() error {
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

func (c *fakeConn) Frames() <-chan ws.Frame { return c.frames }

type harness struct {
	s      *Session
	timers *timerQueue
	pub    *fakePublisher
	conn   *fakeConn
}

func testConfig(t *testing.T, siteURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Profiles: map[string]config.Profile{"test": {
			WebsocketURL: "ws://backend.test/ws",
			PublishURL:   "https://backend.test/prod/update-page",
			SiteURL:      siteURL,
			ProjectID:    "proj",
		}},
		ActiveProfile: "test",
	}
	require.NoError(t, cfg.UseProfile("test"))
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	pub := &fakePublisher{}
	conn := &fakeConn{frames: make(chan ws.Frame, 8)}
	dial := func(ctx context.Context, url string) (ws.Transport, error) {
		return conn, nil
	}

	s := NewSession(testConfig(t, "https://site.test"), eventbus.NewEventBus(), pub, dial, logging.Nop())
	timers := &timerQueue{}
	s.after = timers.add
	t.Cleanup(s.Stop)

	return &harness{s: s, timers: timers, pub: pub, conn: conn}
}

// connect brings the harness session up, resuming the given preview id, and
// discards the initiation-timeout closure when a fresh session is requested.
func (h *harness) connect(previewID string) {
	h.s.handleConnect(previewID)
}

func chunkEnvelope(content string) protocol.Envelope {
	delta, _ := json.Marshal(map[string]string{"type": "delta", "content": content})
	return protocol.Envelope{Type: protocol.TypeStreamChunk, Message: string(delta)}
}

func TestChunksFoldIntoOneBotMessage(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")

	h.s.applyEnvelope(chunkEnvelope("Hello "))
	h.s.applyEnvelope(chunkEnvelope("there, "))
	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeStreamChunk, Message: "operator"})
	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusNoActions})

	snap := h.s.state.Snapshot()
	var botMessages []models.ChatMessage
	for _, m := range snap.Messages {
		if m.Sender == models.Bot {
			botMessages = append(botMessages, m)
		}
	}
	if assert.Len(t, botMessages, 1) {
		assert.Equal(t, "Hello there, operator", botMessages[0].Text)
	}
	assert.False(t, snap.BotTyping)
	assert.Equal(t, models.Idle, snap.Phase)
}

func TestDuplicateStreamEndDoesNotDuplicateMessage(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")

	h.s.applyEnvelope(chunkEnvelope("same reply"))
	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeStreamEnd, Status: protocol.StatusNoActions})
	h.s.applyEnvelope(chunkEnvelope("same reply"))
	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeStreamEnd, Status: protocol.StatusNoActions})

	snap := h.s.state.Snapshot()
	var count int
	for _, m := range snap.Messages {
		if m.Sender == models.Bot {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestNonCompletedFinalStatusesReturnToIdle(t *testing.T) {
	statuses := []string{
		protocol.StatusNoActions,
		protocol.StatusAwaitingConfirmation,
		protocol.StatusAwaitingSelection,
		"error",
		"",
	}
	for _, status := range statuses {
		t.Run("status_"+status, func(t *testing.T) {
			h := newHarness(t)
			h.connect("prev-1")
			h.s.state.SetPhase(models.Chatting)

			h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: status})
			h.timers.fireAll()

			assert.Equal(t, models.Idle, h.s.state.Phase())
			assert.Zero(t, h.pub.createCalls, "no publish for non-completed status")
		})
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")

	before := h.s.state.Snapshot()
	h.s.applyEnvelope(protocol.Envelope{Type: "somethingNew", Message: "whatever"})
	after := h.s.state.Snapshot()

	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, len(before.Progress), len(after.Progress))
}

func TestCompletedStatusRunsFullPublishSequence(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(_ context.Context, previewID string) (publish.CreateResult, error) {
		assert.Equal(t, "prev-1", previewID)
		return publish.CreateResult{TaskID: "t1", Status: publish.StatusQueued}, nil
	}
	h.pub.statusFn = func(_ context.Context, taskID string) (publish.Task, error) {
		assert.Equal(t, "t1", taskID)
		if h.pub.statusCalls == 1 {
			return publish.Task{
				Status:   publish.StatusProcessing,
				Progress: []publish.ProgressItem{{Message: "Uploading"}},
			}, nil
		}
		return publish.Task{
			Status:   publish.StatusCompleted,
			Progress: []publish.ProgressItem{{Message: "Uploading"}},
			Result:   &publish.Result{Message: "Done", UpdatedPageURL: "https://example.test/x"},
		}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	snap := h.s.state.Snapshot()
	assert.Equal(t, models.Idle, snap.Phase)
	assert.Equal(t, 1, h.pub.createCalls)
	assert.Equal(t, 2, h.pub.statusCalls)
	assert.Nil(t, h.s.poller, "no outstanding publish task")
	assert.Equal(t, "https://example.test/x", snap.PreviewURL)

	var uploading, completed int
	for _, entry := range snap.Progress {
		if entry.Message == "📝 Uploading" {
			uploading++
		}
		if entry.Message == "✅ Update completed successfully!" {
			completed++
		}
	}
	assert.Equal(t, 1, uploading, "progress item folded exactly once")
	assert.Equal(t, 1, completed)
}

func TestPublishWithoutPreviewIDNeverIssuesRequest(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPreviewID("")
	h.s.state.SetPhase(models.Chatting)

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	assert.Zero(t, h.pub.createCalls)
	assert.Equal(t, models.Idle, h.s.state.Phase())

	snap := h.s.state.Snapshot()
	require.NotEmpty(t, snap.Progress)
	assert.Contains(t, snap.Progress[len(snap.Progress)-1].Message, "Preview ID is missing")
}

func TestSyncPublishResponseSkipsPolling(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{Sync: true, Result: &publish.Result{Message: "Updated"}}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	assert.Equal(t, models.Idle, h.s.state.Phase())
	assert.Zero(t, h.pub.statusCalls)
	assert.Equal(t, "https://site.test", h.s.state.Snapshot().PreviewURL)
}

func TestPollNotFoundStopsImmediately(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{TaskID: "gone", Status: publish.StatusQueued}, nil
	}
	h.pub.statusFn = func(context.Context, string) (publish.Task, error) {
		return publish.Task{}, publish.ErrTaskNotFound
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	assert.Equal(t, 1, h.pub.statusCalls, "stops on first not-found, not after 60 attempts")
	assert.Equal(t, models.Idle, h.s.state.Phase())
	assert.Nil(t, h.s.poller)
}

func TestPollTimeoutAfterSixtyAttempts(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{TaskID: "slow", Status: publish.StatusQueued}, nil
	}
	h.pub.statusFn = func(context.Context, string) (publish.Task, error) {
		return publish.Task{Status: publish.StatusProcessing}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	assert.Equal(t, publish.MaxAttempts, h.pub.statusCalls)
	assert.Equal(t, models.Idle, h.s.state.Phase())
	assert.Nil(t, h.s.poller)

	snap := h.s.state.Snapshot()
	var sawTimeout bool
	for _, entry := range snap.Progress {
		if entry.Message == "⏱️ Update timed out after 5 minutes" {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout)
	assert.Equal(t, "https://site.test", snap.PreviewURL, "destination still surfaced on timeout")
}

func TestPollFailureSurfacesServerError(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{TaskID: "bad", Status: publish.StatusQueued}, nil
	}
	h.pub.statusFn = func(context.Context, string) (publish.Task, error) {
		return publish.Task{Status: publish.StatusFailed, Error: "theme locked"}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.timers.fireAll()

	snap := h.s.state.Snapshot()
	assert.Equal(t, models.Idle, snap.Phase)
	var sawError bool
	for _, entry := range snap.Progress {
		if entry.Message == "❌ Error: theme locked" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestDisconnectDiscardsScheduledPublish(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	h.s.handleDisconnect()
	h.timers.fireAll()

	assert.Zero(t, h.pub.createCalls, "settle closure from a superseded connection is dropped")
	assert.Equal(t, models.Idle, h.s.state.Phase())
}

func TestStalePollTickIgnoredAfterNewRequest(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{TaskID: "t1", Status: publish.StatusQueued}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, IsFinal: true, Status: protocol.StatusCompleted})
	// Run only the settle closure so a poller exists with one tick pending.
	require.True(t, h.timers.fire())
	require.NotNil(t, h.s.poller)

	// A new user request supersedes the outstanding task.
	h.s.state.SetPhase(models.Idle)
	h.s.handleSendMessage("another change")

	h.timers.fireAll()
	assert.Zero(t, h.pub.statusCalls, "tick for dropped poller never polls")
}

func TestStreamEndCapturesConfirmationToken(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.s.applyEnvelope(chunkEnvelope("This removes 12 widgets. Reply with CONFIRM-9XK4T2 to proceed."))
	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeStreamEnd, Status: protocol.StatusAwaitingConfirmation})

	snap := h.s.state.Snapshot()
	assert.Equal(t, "CONFIRM-9XK4T2", snap.PendingToken)
	assert.Equal(t, models.Idle, snap.Phase)
}

func TestConfirmationInputForwardedAndCleared(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPendingToken("CONFIRM-9XK4T2")

	h.s.handleSendMessage("confirm")

	assert.Equal(t, "", h.s.state.PendingToken())
	var sent *protocol.Outbound
	for i := range h.conn.sent {
		if h.conn.sent[i].Action == protocol.ActionSendMessage {
			sent = &h.conn.sent[i]
		}
	}
	if assert.NotNil(t, sent, "confirmation is forwarded, never short-circuited") {
		assert.Equal(t, "confirm", sent.Content)
		assert.Equal(t, "prev-1", sent.PreviewID)
	}
}

func TestFreeFormInputKeepsToken(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPendingToken("CONFIRM-9XK4T2")

	h.s.handleSendMessage("make the footer darker")

	assert.Equal(t, "CONFIRM-9XK4T2", h.s.state.PendingToken())
}

func TestConfirmationResultEventClearsToken(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPendingToken("CONFIRM-9XK4T2")

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeConfirmationResult, Status: "confirmed"})

	assert.Equal(t, "", h.s.state.PendingToken())
}

func TestSendWhileDisconnectedRejectedAndLogged(t *testing.T) {
	h := newHarness(t)

	h.s.handleSendMessage("hello")

	assert.Empty(t, h.conn.sent)
	snap := h.s.state.Snapshot()
	require.NotEmpty(t, snap.Progress)
	assert.Contains(t, snap.Progress[len(snap.Progress)-1].Message, "not connected")
}

func TestSendWhileBusyIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.s.handleSendMessage("impatient follow-up")

	assert.Empty(t, h.conn.sent)
}

func TestConnectWithExistingPreviewIDSkipsInitiation(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-42")

	snap := h.s.state.Snapshot()
	assert.Equal(t, models.Connected, snap.ConnState)
	assert.Equal(t, models.Idle, snap.Phase)
	assert.Equal(t, "prev-42", snap.PreviewID)
	assert.Empty(t, h.conn.sent, "no initiatePreview when resuming")
}

func TestConnectWithoutPreviewIDInitiates(t *testing.T) {
	h := newHarness(t)
	h.connect("")

	assert.Equal(t, models.Initiating, h.s.state.Phase())
	require.Len(t, h.conn.sent, 1)
	assert.Equal(t, protocol.ActionInitiatePreview, h.conn.sent[0].Action)

	h.s.applyEnvelope(protocol.Envelope{
		Type:      protocol.TypePreviewInitiated,
		Status:    "success",
		PreviewID: "prev-fresh",
	})

	assert.Equal(t, models.Idle, h.s.state.Phase())
	assert.Equal(t, "prev-fresh", h.s.state.PreviewID())

	// The armed timeout closure is now a no-op.
	h.timers.fireAll()
	assert.Equal(t, models.Idle, h.s.state.Phase())
}

func TestInitiationTimeoutReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.connect("")

	require.Equal(t, models.Initiating, h.s.state.Phase())
	h.timers.fireAll()

	snap := h.s.state.Snapshot()
	assert.Equal(t, models.Idle, snap.Phase)
	var sawTimeout bool
	for _, entry := range snap.Progress {
		if entry.Message == "❌ Timeout waiting for preview initiation" {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout)
}

func TestLatePreviewInitiatedIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect("")
	h.timers.fireAll() // times out

	h.s.applyEnvelope(protocol.Envelope{
		Type:      protocol.TypePreviewInitiated,
		Status:    "success",
		PreviewID: "prev-late",
	})

	assert.Equal(t, "", h.s.state.PreviewID())
}

func TestTransportErrorForcesIdleKeepsHistory(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.StartRequest("hello")

	h.s.handleFrame(frameEvent{gen: h.s.gen, frame: ws.Frame{Err: errors.New("broken pipe")}})

	snap := h.s.state.Snapshot()
	assert.Equal(t, models.Disconnected, snap.ConnState)
	assert.Equal(t, models.Idle, snap.Phase)
	assert.False(t, snap.BotTyping)
	assert.NotEmpty(t, snap.Messages, "conversation history intact after drop")
}

func TestFrameFromSupersededConnectionDropped(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	staleGen := h.s.gen
	h.s.handleDisconnect()

	h.s.handleFrame(frameEvent{gen: staleGen, frame: ws.Frame{Data: []byte(`{"type":"streamChunk","message":"ghost"}`)}})

	assert.Equal(t, "", h.s.state.Snapshot().StreamingText)
}

func TestStreamStartedProgressSuppressed(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	before := len(h.s.state.Snapshot().Progress)

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeProgressUpdate, Message: "Stream started"})

	assert.Len(t, h.s.state.Snapshot().Progress, before)
}

func TestActionProgressAllCompletedTriggersPublish(t *testing.T) {
	h := newHarness(t)
	h.connect("prev-1")
	h.s.state.SetPhase(models.Chatting)

	h.pub.createFn = func(context.Context, string) (publish.CreateResult, error) {
		return publish.CreateResult{Sync: true, Result: &publish.Result{Message: "Updated"}}, nil
	}

	h.s.applyEnvelope(protocol.Envelope{Type: protocol.TypeActionProgress, Message: "Widgets replaced", Status: protocol.ActionAllCompleted, IsFinal: true})
	h.timers.fireAll()

	assert.Equal(t, 1, h.pub.createCalls)
	assert.Equal(t, models.Idle, h.s.state.Phase())
}
