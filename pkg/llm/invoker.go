package llm

import (
	"context"

	"chat-relay-go/internal/config"
	"chat-relay-go/internal/model"
)

// Mode selects the backend call shape.
type Mode int

const (
	Buffered Mode = iota
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "buffered"
}

// Response is the normalized result of one invocation. Both modes expose
// the same lazy delta sequence; a buffered result is a sequence of one.
type Response struct {
	Mode   Mode
	deltas <-chan Delta
}

// Deltas returns the sequence in generation order.
func (r *Response) Deltas() <-chan Delta {
	return r.deltas
}

// Invoker builds backend requests for the single configured model.
type Invoker struct {
	model      string
	generation GenerationParams
}

// NewInvoker creates an Invoker from the llm config section.
func NewInvoker(cfg config.LLMConfig) *Invoker {
	return &Invoker{
		model: cfg.Model,
		generation: GenerationParams{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
		},
	}
}

// Model returns the configured model id.
func (i *Invoker) Model() string { return i.model }

// BuildRequest projects turns into a fresh Request.
func (i *Invoker) BuildRequest(turns []model.Turn) Request {
	return Request{Model: i.model, Messages: Project(turns), Generation: i.generation}
}

// Invoke calls the backend through client. Failures, including ones that
// arrive mid-stream, are reported as *InferenceError.
func (i *Invoker) Invoke(ctx context.Context, client Client, turns []model.Turn, mode Mode) (*Response, error) {
	req := i.BuildRequest(turns)

	if mode == Buffered {
		text, err := client.Complete(ctx, req)
		if err != nil {
			return nil, &InferenceError{Op: "complete", Err: err}
		}
		ch := make(chan Delta, 1)
		ch <- Delta{Text: text}
		close(ch)
		return &Response{Mode: Buffered, deltas: ch}, nil
	}

	in, err := client.Stream(ctx, req)
	if err != nil {
		return nil, &InferenceError{Op: "stream", Err: err}
	}
	out := make(chan Delta)
	go func() {
		defer close(out)
		for d := range in {
			if d.Err != nil {
				d.Err = &InferenceError{Op: "stream", Err: d.Err}
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Response{Mode: Streaming, deltas: out}, nil
}
