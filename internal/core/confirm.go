package core

import (
	"regexp"
	"strings"
)

// Confirmation codes are short opaque capability strings the assistant
// embeds in its reply, e.g. "CONFIRM-7K2QX9".
var tokenPattern = regexp.MustCompile(`\bCONFIRM-[A-Z0-9]{4,10}\b`)

// FindToken scans finalized assistant text for a confirmation code and
// returns it, or "" when none is present.
func FindToken(text string) string {
	return tokenPattern.FindString(text)
}

// Verdict classifies the user's next input against a pending confirmation.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictAffirm
	VerdictReject
)

var (
	affirmWords = map[string]bool{"confirm": true, "yes": true, "proceed": true}
	rejectWords = map[string]bool{"no": true, "cancel": true, "change": true, "edit": true, "revise": true}
)

// Classify decides whether the input confirms, rejects, or simply continues
// the conversation while a token is pending. The second return reports
// whether the pending token should be cleared. The input is always forwarded
// to the backend unchanged; the authoritative decision is made server-side,
// this only drives UI hinting and state cleanup.
func Classify(input, token string) (Verdict, bool) {
	if token == "" {
		return VerdictNone, false
	}

	trimmed := strings.ToLower(strings.TrimSpace(input))

	// Echoing the code literally always resolves the pending state, whatever
	// else the message says.
	if strings.Contains(strings.ToUpper(input), token) {
		return VerdictAffirm, true
	}
	if affirmWords[trimmed] {
		return VerdictAffirm, true
	}
	if rejectWords[trimmed] {
		return VerdictReject, true
	}
	return VerdictNone, false
}
