// Package extract finds candidate token addresses in free-form text.
package extract

import (
	"regexp"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// DefaultMaxTokens caps how many tokens one message yields.
const DefaultMaxTokens = 5

// candidate matches whole alphanumeric words of at least 32 characters.
// ParseTokenIdentifier then rejects words over 44 characters or holding a
// character outside the base-58 alphabet (0, O, I, l), so neither a prefix
// of a longer word nor a fragment around a bad character is ever returned.
var candidate = regexp.MustCompile(`[0-9A-Za-z]{32,}`)

// Extractor pulls token identifiers out of message text.
type Extractor struct {
	max int
}

// New returns an Extractor yielding at most max tokens per call; max <= 0
// selects DefaultMaxTokens.
func New(max int) *Extractor {
	if max <= 0 {
		max = DefaultMaxTokens
	}
	return &Extractor{max: max}
}

// Extract returns the valid token identifiers in text in order of
// appearance, duplicates included, truncated to the configured maximum.
func (e *Extractor) Extract(text string) []domain.TokenIdentifier {
	var out []domain.TokenIdentifier
	for _, m := range candidate.FindAllString(text, -1) {
		if len(out) == e.max {
			break
		}
		tok, err := domain.ParseTokenIdentifier(m)
		if err != nil {
			continue
		}
		out = append(out, tok)
	}
	return out
}
