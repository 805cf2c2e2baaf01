package ai

import (
	"context"
	"errors"
)

// Message is one role-tagged turn sent to a chat-completion provider.
// Role must be "system", "user", or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options controls sampling for a single generation call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// ChatGenerator produces the next assistant utterance for a message list.
// All providers (OpenAI-compatible, Gemini) implement this interface.
type ChatGenerator interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Provider failure kinds callers can branch on with errors.Is.
var (
	// ErrRateLimited maps HTTP 429 from the provider. Recoverable by waiting.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrQuotaExhausted maps HTTP 402 from the provider. Requires operator action.
	ErrQuotaExhausted = errors.New("provider quota exhausted")
)
