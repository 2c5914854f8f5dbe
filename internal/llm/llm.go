package llm

import (
	"context"
	"errors"
)

// Client abstracts LLM providers for clause suggestion drafting.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrNotConfigured is returned by the placeholder client when no provider is
// wired. Suggestion generation treats it as a degraded stage, not a failure.
var ErrNotConfigured = errors.New("LLM provider not configured")

// PlaceholderClient is the no-provider fallback.
type PlaceholderClient struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderClient) Complete(ctx context.Context, prompt string) (string, error) {
	_ = ctx
	_ = prompt
	return "", ErrNotConfigured
}
