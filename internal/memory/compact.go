package memory

import (
	"log/slog"
)

// Marker is inserted where Compact cut the text.
const Marker = "\n\n<!-- usagi: compressed -->\n\n"

// DefaultMaxChars is the prompt budget used when none is given.
const DefaultMaxChars = 2500

// Compact keeps the first 60% and the last 40% of maxChars characters of text, joined by Marker.
// Text within the budget is returned unchanged. Sizes are logged when a cut happens.
func Compact(text, stage string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	head := maxChars * 6 / 10
	tail := maxChars - head
	out := string(r[:head]) + Marker + string(r[len(r)-tail:])
	slog.Info("prompt_compact",
		"stage", stage,
		"before_chars", len(r),
		"after_chars", len([]rune(out)),
		"max_chars", maxChars)
	return out
}
