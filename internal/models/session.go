package models

// ConnectionState tracks the realtime channel lifecycle.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Errored:
		return "Connection Error"
	default:
		return "Not Connected"
	}
}

// Phase is the coarse position of the session state machine. Phase must be
// Idle whenever the connection is not up, and every entry into a non-Idle
// phase has exactly one exit back to Idle.
type Phase int

const (
	Idle Phase = iota
	Initiating
	Chatting
	Updating
)

func (p Phase) String() string {
	switch p {
	case Initiating:
		return "Initiating"
	case Chatting:
		return "Processing"
	case Updating:
		return "Publishing"
	default:
		return "Ready"
	}
}
