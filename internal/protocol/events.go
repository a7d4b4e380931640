package protocol

import "encoding/json"

// Inbound event types emitted by the preview backend.
const (
	TypeStreamChunk        = "streamChunk"
	TypeStreamEnd          = "streamEnd"
	TypeProgressUpdate     = "progressUpdate"
	TypeStateUpdated       = "state_updated"
	TypeActionProgress     = "actionProgress"
	TypeActionConfirmation = "action_confirmation"
	TypeConfirmationResult = "confirmation_result"
	TypePreviewInitiated   = "previewInitiated"
)

// Final-status values carried by progressUpdate and streamEnd events.
const (
	StatusCompleted            = "completed"
	StatusNoActions            = "no_actions"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusAwaitingSelection    = "awaiting_selection"
)

// Sub-statuses carried by actionProgress events.
const (
	ActionStarted      = "started"
	ActionAllCompleted = "all_completed"
)

// Outbound action names.
const (
	ActionSendMessage     = "sendMessage"
	ActionInitiatePreview = "initiatePreview"
)

// Envelope is the inbound message shape. The backend attaches extra fields
// depending on Type; unknown fields and unknown types must both be tolerated,
// so everything is optional and the raw payload is kept alongside.
type Envelope struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	Status         string `json:"status,omitempty"`
	IsFinal        bool   `json:"isFinal,omitempty"`
	Action         string `json:"action,omitempty"`
	PreviewID      string `json:"previewId,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	PreviewMessage string `json:"preview_message,omitempty"`
	TotalCount     int    `json:"total_count,omitempty"`
}

// Outbound is the client-to-backend message shape.
type Outbound struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId,omitempty"`
	PreviewID string `json:"previewId,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Decode parses a raw socket frame into an Envelope. Callers treat a decode
// failure as a protocol error to log and drop, never to propagate.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// delta is the nested envelope some backends wrap stream chunks in.
type delta struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChunkText extracts the incremental text from a streamChunk message field.
// The field may itself be a JSON delta envelope; if it decodes to one, its
// content wins, otherwise the raw string is used as-is. Parse failures also
// degrade to the raw string so a malformed chunk never loses text.
func ChunkText(message string) string {
	if message == "" {
		return ""
	}
	var d delta
	if err := json.Unmarshal([]byte(message), &d); err == nil {
		if d.Type == "delta" && d.Content != "" {
			return d.Content
		}
		// Valid JSON but not a delta envelope: keep the raw payload.
	}
	return message
}
