// Package tokens keeps page representations inside the model's prompt budget.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const truncationMarker = "\n... (truncated)"

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func enc() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = e
		}
	})
	return encoding
}

// Count returns the cl100k_base token count, or a rune based estimate when the
// encoding cannot be loaded.
func Count(text string) int {
	if e := enc(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return estimate(text)
}

// Truncate cuts text to at most maxTokens tokens. A non-positive limit
// disables truncation.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	e := enc()
	if e == nil {
		runes := []rune(text)
		if len(runes) <= maxTokens*4 {
			return text
		}
		return string(runes[:maxTokens*4]) + truncationMarker
	}
	ids := e.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return e.Decode(ids[:maxTokens]) + truncationMarker
}

func estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); n < words {
		n = words
	}
	return n
}
