package core

import (
	"sync"

	"previewchat/internal/models"
)

// SessionState holds every entity owned by the session: conversation
// history, the in-progress stream buffer, the process log, phase and
// connection state, the pending confirmation token and the preview URL.
// All writers go through the session event loop; the mutex keeps snapshot
// reads safe regardless.
type SessionState struct {
	mu sync.RWMutex

	history   []models.ChatMessage
	streamBuf string
	botTyping bool

	progress []models.ProgressEntry

	connState models.ConnectionState
	phase     models.Phase

	previewID    string
	previewURL   string
	pendingToken string
}

func NewSessionState() *SessionState {
	return &SessionState{
		history:   make([]models.ChatMessage, 0),
		progress:  make([]models.ProgressEntry, 0),
		connState: models.Disconnected,
		phase:     models.Idle,
	}
}

// ResetForConnect clears everything scoped to a connection lifetime. Runs on
// every successful open so a reconnect starts clean.
func (s *SessionState) ResetForConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = s.history[:0]
	s.progress = s.progress[:0]
	s.streamBuf = ""
	s.botTyping = false
	s.pendingToken = ""
	s.previewURL = ""
	s.phase = models.Idle
}

// DropConnection records a close or transport error. Conversation history is
// kept; only connection-scoped ephemeral state is cleared. Phase is forced
// to Idle so nothing can be left mid-flight against a dead channel.
func (s *SessionState) DropConnection(state models.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connState = state
	s.botTyping = false
	s.phase = models.Idle
}

// StartRequest atomically records a new user message: appends it to history,
// clears the process log and stream buffer, and moves to Chatting.
func (s *SessionState) StartRequest(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, models.ChatMessage{Sender: models.User, Text: content})
	s.progress = s.progress[:0]
	s.streamBuf = ""
	s.botTyping = true
	s.phase = models.Chatting
}

// AppendChunk folds incremental stream text into the in-progress bot
// message.
func (s *SessionState) AppendChunk(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamBuf += text
	s.botTyping = true
}

// FinishStream freezes the in-progress buffer into history as one Bot
// message and returns the finalized text. A duplicate stream end, or one
// whose text equals the last history entry, adds nothing.
func (s *SessionState) FinishStream() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.botTyping = false
	text := s.streamBuf
	s.streamBuf = ""
	if text == "" {
		return ""
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		if last.Sender == models.Bot && last.Text == text {
			return text
		}
	}
	s.history = append(s.history, models.ChatMessage{Sender: models.Bot, Text: text})
	return text
}

// AddProgress appends one entry to the process log.
func (s *SessionState) AddProgress(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = append(s.progress, models.NewProgressEntry(message))
}

// AddProgramMessage adds a program line to the conversation (welcome text,
// hints).
func (s *SessionState) AddProgramMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, models.ChatMessage{Sender: models.Program, Text: content})
}

func (s *SessionState) SetConnState(state models.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState = state
}

func (s *SessionState) ConnState() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

func (s *SessionState) SetPhase(phase models.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

func (s *SessionState) Phase() models.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *SessionState) SetBotTyping(typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botTyping = typing
}

func (s *SessionState) SetPreviewID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewID = id
}

func (s *SessionState) PreviewID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previewID
}

func (s *SessionState) SetPreviewURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewURL = url
}

func (s *SessionState) SetPendingToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingToken = token
}

func (s *SessionState) PendingToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingToken
}

// Snapshot copies the full view state for a UI push.
func (s *SessionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]models.ChatMessage, len(s.history))
	copy(messages, s.history)
	progress := make([]models.ProgressEntry, len(s.progress))
	copy(progress, s.progress)

	return Snapshot{
		Messages:      messages,
		StreamingText: s.streamBuf,
		BotTyping:     s.botTyping,
		Progress:      progress,
		ConnState:     s.connState,
		Phase:         s.phase,
		PreviewID:     s.previewID,
		PreviewURL:    s.previewURL,
		PendingToken:  s.pendingToken,
	}
}

// Snapshot is a point-in-time copy of the session view state.
type Snapshot struct {
	Messages      []models.ChatMessage
	StreamingText string
	BotTyping     bool
	Progress      []models.ProgressEntry
	ConnState     models.ConnectionState
	Phase         models.Phase
	PreviewID     string
	PreviewURL    string
	PendingToken  string
}
