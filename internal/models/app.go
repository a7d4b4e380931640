package models

// AppModel is the UI projection: derived view state only, no independent
// business state. The core pushes snapshots through the event bus and the UI
// folds them in here.
type AppModel struct {
	Messages      []ChatMessage
	StreamingText string // trailing in-progress bot message
	BotTyping     bool
	Progress      []ProgressEntry

	ConnState  ConnectionState
	Phase      Phase
	PreviewID  string
	PreviewURL string

	// PendingToken is set while a confirmation code is outstanding; the input
	// placeholder hints at it but input is otherwise unaffected.
	PendingToken string

	Status      string
	Width       int
	Height      int
	LoadingDots int
}

// InputEnabled reports whether the message input should accept a send. The
// input is locked whenever the session is outside Idle or a bot response is
// still streaming.
func (m AppModel) InputEnabled() bool {
	return m.ConnState == Connected && m.Phase == Idle && !m.BotTyping
}
