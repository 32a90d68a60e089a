package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Predictor is one inference backend bound to one credential and one
// system prompt.
type Predictor interface {
	// Predict sends instruction, with text attached as a fenced block when it
	// is non-empty, and returns the raw model output.
	Predict(ctx context.Context, instruction, text string) (string, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, instruction, text string) (string, error)

func (f PredictorFunc) Predict(ctx context.Context, instruction, text string) (string, error) {
	return f(ctx, instruction, text)
}

// ErrRateLimited is matched by errors.Is for every backend's rate-limit failure.
var ErrRateLimited = errors.New("llm: rate limited")

// StatusError is a non-2xx response from an HTTP inference backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status: %d: %s", e.Code, truncate(e.Body, 256))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// UserPrompt renders the user message the way every backend sends it.
func UserPrompt(instruction, text string) string {
	if text == "" {
		return instruction
	}
	return instruction + "\n\n```" + text + "```"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
