// Package providers wraps the text-generation service the bot uses to write
// replies. Any OpenAI-compatible chat completion endpoint works.
package providers

import (
	"context"
	"errors"
)

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("providers: no choices returned")

// GenerateRequest is one completion call.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string // overrides the provider default when set
	MaxTokens   int
	Temperature *float64 // nil uses the provider default; 0 is a valid setting
}

// Generator produces reply text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
