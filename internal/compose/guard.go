// internal/compose/guard.go
package compose

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Guard bounds outgoing message length in model tokens, so oversized input
// is rejected client-side instead of burning a round trip to the backend.
type Guard struct {
	tokenizer *tiktoken.Tiktoken
	limit     int
}

// NewGuard creates a guard for the given tokenizer model and token limit.
// A limit of zero or less disables the check.
func NewGuard(model string, limit int) (*Guard, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Guard{tokenizer: enc, limit: limit}, nil
}

// Count returns the token count for a string.
func (g *Guard) Count(text string) int {
	return len(g.tokenizer.Encode(text, nil, nil))
}

// Check returns a *TooLongError when the text exceeds the token limit.
func (g *Guard) Check(text string) error {
	if g == nil || g.limit <= 0 {
		return nil
	}
	tokens := g.Count(text)
	if tokens > g.limit {
		return &TooLongError{Tokens: tokens, Limit: g.limit}
	}
	return nil
}

// TooLongError reports an outgoing message over the token limit.
type TooLongError struct {
	Tokens int
	Limit  int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("message is %d tokens, limit is %d", e.Tokens, e.Limit)
}
