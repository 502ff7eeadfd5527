// Package llm defines the generator collaborator interface consumed by the
// pipeline stages and a client wrapper providing retries, rate limiting,
// and nonce-based idempotency. Provider-specific prompt shaping belongs in
// adapters, not in the stages.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// FailureClass distinguishes retryable from fatal generator failures.
type FailureClass string

// Failure class constants.
const (
	FailureTransient FailureClass = "transient"
	FailureTerminal  FailureClass = "terminal"
)

// ErrTerminal is the sentinel wrapped by terminal collaborator failures.
var ErrTerminal = errors.New("terminal collaborator failure")

// CollaboratorError is a classified generator failure.
type CollaboratorError struct {
	Class   FailureClass
	Message string
	Err     error
}

// Error returns the formatted error message.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("llm %s failure: %s", e.Class, e.Message)
}

// Unwrap exposes the underlying cause; terminal errors also match
// ErrTerminal via Is.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTerminal) detect terminal failures.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrTerminal && e.Class == FailureTerminal
}

// Retryable reports whether the failure is worth retrying.
func (e *CollaboratorError) Retryable() bool {
	return e.Class == FailureTransient
}

// GenerateRequest is one generation call. Nonce makes retried calls
// idempotent: the client returns the cached response for a nonce it has
// already completed.
type GenerateRequest struct {
	Nonce              string
	Prompt             string
	SystemInstructions string
	MaxTokens          int
	Temperature        float64
}

// GenerateResponse is the generator's output.
type GenerateResponse struct {
	Text            string
	TokensUsed      int
	ModelConfidence *float64 // nil if the provider does not report one
}

// Generator is the external LLM collaborator. Implementations must honor
// the context deadline and classify failures via *CollaboratorError.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}
