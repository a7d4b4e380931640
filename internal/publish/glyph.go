package publish

import "strings"

// glyphTable maps substrings of server progress messages to a status glyph.
// First match wins, top to bottom.
var glyphTable = []struct {
	subs  []string
	glyph string
}{
	{[]string{"Starting", "Initiating"}, "🚀"},
	{[]string{"Processing", "Updating"}, "⚙️"},
	{[]string{"Completed", "Success"}, "✅"},
	{[]string{"Error", "Failed"}, "❌"},
	{[]string{"Publishing", "Saving"}, "💾"},
	{[]string{"Validating", "Checking"}, "🔍"},
}

// Glyph picks the status glyph for a task progress message.
func Glyph(message string) string {
	for _, row := range glyphTable {
		for _, sub := range row.subs {
			if strings.Contains(message, sub) {
				return row.glyph
			}
		}
	}
	return "📝"
}

// Decorate prefixes a task progress message with its glyph.
func Decorate(message string) string {
	return Glyph(message) + " " + message
}
