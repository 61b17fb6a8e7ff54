package audit

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/confidence"
)

// DefaultMaxResponseChars caps the stored response length in runes.
const DefaultMaxResponseChars = 4000

const ellipsis = "…"

// Sink persists audit records. Implementations must not report success
// for a record that was not durably written.
type Sink interface {
	Create(ctx context.Context, rec *Record) error
}

// Input describes one completed exchange.
type Input struct {
	Route       string
	UserContext map[string]any
	Messages    []Message
	Response    string
	Tools       []ToolInvocation
	// Confidence, when set, is used directly (clamped). Otherwise the
	// score is aggregated from Signals.
	Confidence *float64
	Signals    []confidence.Signal
	// Fallback overrides the writer's fallback confidence.
	Fallback *float64
}

// Result is what Write persisted.
type Result struct {
	Record            *Record
	Redactions        int
	Breakdown         Breakdown
	ConfidenceSummary confidence.Summary
}

// Writer redacts, trims and persists audit records.
type Writer struct {
	sink        Sink
	logger      *zap.SugaredLogger
	maxResponse int
	fallback    float64
	now         func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMaxResponseChars sets the response cap in runes.
func WithMaxResponseChars(n int) WriterOption {
	return func(w *Writer) {
		if n >= 2 {
			w.maxResponse = n
		}
	}
}

// WithFallbackConfidence sets the score used when no signal carries weight.
func WithFallbackConfidence(f float64) WriterOption {
	return func(w *Writer) { w.fallback = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer that persists to sink.
func NewWriter(sink Sink, logger *zap.SugaredLogger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &Writer{
		sink:        sink,
		logger:      logger,
		maxResponse: DefaultMaxResponseChars,
		fallback:    confidence.DefaultFallback,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write redacts the transcript and response, resolves confidence and
// persists the record. A persistence failure is logged and returned.
func (w *Writer) Write(ctx context.Context, in Input) (*Result, error) {
	conv := RedactConversation(in.Messages)
	resp := RedactText(in.Response)

	breakdown := Breakdown{}
	breakdown.merge(conv.Breakdown)
	breakdown.merge(resp.Breakdown)

	fallback := w.fallback
	if in.Fallback != nil {
		fallback = *in.Fallback
	}
	var summary confidence.Summary
	if in.Confidence != nil {
		summary = confidence.Explicit(*in.Confidence, in.Signals, fallback)
	} else {
		summary = confidence.Aggregate(in.Signals, fallback)
	}

	userContext := in.UserContext
	if userContext == nil {
		userContext = map[string]any{}
	}
	tools := in.Tools
	if tools == nil {
		tools = []ToolInvocation{}
	}

	rec := &Record{
		ID:                uuid.New().String(),
		Route:             in.Route,
		UserContext:       userContext,
		Messages:          conv.Messages,
		Response:          TrimResponse(resp.Text, w.maxResponse),
		Tools:             tools,
		PIIRedactions:     breakdown.Total(),
		Confidence:        summary.Score,
		ConfidenceSummary: summary,
		CreatedAt:         w.now().UTC(),
	}

	if err := w.sink.Create(ctx, rec); err != nil {
		w.logger.Errorw("Failed to write audit log",
			"route", in.Route,
			"id", rec.ID,
			"error", err,
		)
		return nil, fmt.Errorf("writing audit log: %w", err)
	}

	w.logger.Debugw("audit log written",
		"route", rec.Route,
		"id", rec.ID,
		"redactions", rec.PIIRedactions,
		"confidence", rec.Confidence,
	)

	return &Result{
		Record:            rec,
		Redactions:        rec.PIIRedactions,
		Breakdown:         breakdown,
		ConfidenceSummary: summary,
	}, nil
}

// TrimResponse caps s at max runes, replacing the last kept rune with an
// ellipsis when it cuts.
func TrimResponse(s string, max int) string {
	if max < 1 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
