package stream

import (
	"context"
	"time"
)

// Default pacing.
const (
	DefaultChunkSize = 64
	DefaultDelay     = 30 * time.Millisecond
)

// Options controls token pacing.
type Options struct {
	ChunkSize int
	Delay     time.Duration
}

// DefaultOptions returns 64-rune chunks with a 30ms pause between them.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Delay: DefaultDelay}
}

// ToolResult pairs a tool call with what it returned.
type ToolResult struct {
	Call   ToolCall
	Result any
}

// Plan is a fully assembled answer ready for delivery.
type Plan struct {
	System        string
	Meta          map[string]any
	Tools         []ToolResult
	Response      string
	Citations     []Citation
	LowConfidence bool

	// Finalize runs after the last token and before the terminal event.
	// An error replaces the complete event with an error event.
	Finalize func(ctx context.Context) error
}

// Stream emits plan as start, meta, tool, token and complete events.
// It stops at the first emitter error or when ctx is done and returns
// that error; nothing more is written in either case.
func Stream(ctx context.Context, plan Plan, em Emitter, opts Options) error {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	if err := emit(ctx, em, Event{Type: TypeStart}); err != nil {
		return err
	}
	if err := emit(ctx, em, Event{Type: TypeMeta, System: plan.System, Meta: plan.Meta}); err != nil {
		return err
	}
	for _, t := range plan.Tools {
		call := t.Call
		if err := emit(ctx, em, Event{Type: TypeTool, Tool: &call, Result: t.Result}); err != nil {
			return err
		}
	}

	chunks := Chunk(plan.Response, opts.ChunkSize)
	for i, c := range chunks {
		if err := emit(ctx, em, Event{Type: TypeToken, Value: c}); err != nil {
			return err
		}
		if i < len(chunks)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return err
			}
		}
	}

	if plan.Finalize != nil {
		if err := plan.Finalize(ctx); err != nil {
			Fail(em, DefaultErrorMessage)
			return err
		}
	}

	return emit(ctx, em, Event{
		Type:          TypeComplete,
		Citations:     plan.Citations,
		LowConfidence: plan.LowConfidence,
	})
}

// Fail emits the terminal error event. An empty msg uses
// DefaultErrorMessage.
func Fail(em Emitter, msg string) error {
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return em.Emit(Event{Type: TypeError, Message: msg})
}

func emit(ctx context.Context, em Emitter, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return em.Emit(e)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
