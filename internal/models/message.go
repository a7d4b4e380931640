package models

import "time"

type Sender int

const (
	User Sender = iota
	Bot
	Program
)

// ChatMessage is one entry in the conversation history. History is
// append-only; the single in-progress bot message lives outside it until the
// stream ends.
type ChatMessage struct {
	Sender Sender
	Text   string
}

// ProgressEntry is one line of the append-only process log.
type ProgressEntry struct {
	Time    string
	Message string
}

func NewProgressEntry(message string) ProgressEntry {
	return ProgressEntry{
		Time:    time.Now().Format("15:04:05"),
		Message: message,
	}
}
