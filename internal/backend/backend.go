package backend

import (
	"context"
	"errors"
)

// Generator produces model completions for a prompt. Implementations
// own credential selection and retry behavior.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request describes a single generation call.
type Request struct {
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int32
}

// Response is the model output for a Request.
type Response struct {
	Text  string
	Model string
}

var (
	// ErrEmptyPool is returned when a rotator is constructed with no credentials.
	ErrEmptyPool = errors.New("credential pool is empty")

	// ErrCredentialsExhausted is returned after every credential in the
	// pool has been tried and failed for a single invocation.
	ErrCredentialsExhausted = errors.New("all credentials exhausted")
)
