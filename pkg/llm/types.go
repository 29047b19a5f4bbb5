// Package llm provides clients for the inference backend and normalizes
// their buffered and streaming responses into a single delta sequence.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Part is one outbound content unit. Exactly one of Text or Image is set.
type Part struct {
	Text  string
	Image *Image
}

// Image carries a base64 encoded picture exactly as the client sent it.
type Image struct {
	MediaType string
	Data      string
}

// Message is a role-based turn in the text-only backend projection.
type Message struct {
	Role    string
	Content []Part
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Request is built fresh for every call and never persisted.
type Request struct {
	Model      string
	Messages   []Message
	Generation GenerationParams
}

// Delta is one incremental piece of generated text. A Delta with a non-nil
// Err is the last value on its channel; closing the channel is the end marker.
type Delta struct {
	Text string
	Err  error
}

// Client is the session handle for one backend. Implementations must not
// retry; the session guard one layer up owns the retry policy.
type Client interface {
	// Complete issues a buffered call and returns the full assistant text.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream issues a streaming call. The returned channel is closed after the
	// backend's end marker, after a terminal error Delta, or when ctx is done.
	Stream(ctx context.Context, req Request) (<-chan Delta, error)
}

// ErrInference matches every *InferenceError via errors.Is.
var ErrInference = errors.New("inference failed")

// InferenceError wraps any transport or backend failure without interpreting it.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }
