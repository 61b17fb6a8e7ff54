// Package assistant composes admission control, guardrails, intent
// classification, retrieval, tools and generation into one streamed answer,
// and exposes it over SSE, NDJSON and WebSocket endpoints.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/analytics"
	"github.com/ziadkadry99/assistd/internal/audit"
	"github.com/ziadkadry99/assistd/internal/confidence"
	"github.com/ziadkadry99/assistd/internal/guardrail"
	"github.com/ziadkadry99/assistd/internal/intent"
	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/ratelimit"
	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/tools"
	"github.com/ziadkadry99/assistd/internal/vectordb"
	"github.com/ziadkadry99/assistd/internal/workers"
)

// ErrGenerationTimeout is returned when retrieval or generation overruns
// its deadline.
var ErrGenerationTimeout = errors.New("generation timed out")

const (
	DefaultTimeout       = 5 * time.Second
	DefaultCitationLimit = 3
	DefaultSearchLimit   = 5

	// LowConfidenceThreshold marks answers scoring below it as low confidence.
	LowConfidenceThreshold = 0.5

	auditTimeout = 10 * time.Second
)

// Routes recorded on audit records.
const (
	RouteAssistant = "/api/assistant"
	RouteChat      = "/api/assistant/chat"
	RouteSocket    = "/api/assistant/ws"
)

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	Model              string
	CitationLimit      int
	SearchLimit        int
	RetrievalTimeout   time.Duration
	GenerationTimeout  time.Duration
	FallbackConfidence float64
	Stream             stream.Options
	AssistantPolicy    ratelimit.Policy
	SearchPolicy       ratelimit.Policy
	ContactURL         string
	AllowAllOrigins    bool
}

// DefaultOptions returns the production settings: 60 requests a minute per
// client, 5s timeouts and three citations per answer.
func DefaultOptions() Options {
	return Options{
		CitationLimit:      DefaultCitationLimit,
		SearchLimit:        DefaultSearchLimit,
		RetrievalTimeout:   DefaultTimeout,
		GenerationTimeout:  DefaultTimeout,
		FallbackConfidence: confidence.DefaultFallback,
		Stream:             stream.DefaultOptions(),
		AssistantPolicy:    ratelimit.Policy{Prefix: "assistant", Window: time.Minute, Max: 60},
		SearchPolicy:       ratelimit.Policy{Prefix: "search", Window: time.Minute, Max: 60},
		ContactURL:         "https://example.gov/contact",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CitationLimit <= 0 {
		o.CitationLimit = d.CitationLimit
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	if o.RetrievalTimeout <= 0 {
		o.RetrievalTimeout = d.RetrievalTimeout
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = d.GenerationTimeout
	}
	if o.Stream.ChunkSize <= 0 {
		o.Stream.ChunkSize = stream.DefaultChunkSize
	}
	o.AssistantPolicy = policyWithDefaults(o.AssistantPolicy, d.AssistantPolicy)
	o.SearchPolicy = policyWithDefaults(o.SearchPolicy, d.SearchPolicy)
	if o.ContactURL == "" {
		o.ContactURL = d.ContactURL
	}
	return o
}

func policyWithDefaults(p, d ratelimit.Policy) ratelimit.Policy {
	if p.Prefix == "" {
		p.Prefix = d.Prefix
	}
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	return p
}

// Deps are the collaborators a Service is built from. Classifier,
// Retriever and Generator are required.
type Deps struct {
	Limiter    ratelimit.Limiter
	Guard      *guardrail.Filter
	Classifier intent.Classifier
	Retriever  vectordb.Retriever
	Generator  llm.Provider
	Tools      *tools.Registry
	Audit      *audit.Writer
	Analytics  analytics.Sink
	Pool       *workers.Pool
	Logger     *zap.SugaredLogger
}

// Service answers user messages.
type Service struct {
	limiter    ratelimit.Limiter
	guard      *guardrail.Filter
	classifier intent.Classifier
	retriever  vectordb.Retriever
	generator  llm.Provider
	tools      *tools.Registry
	audit      *audit.Writer
	analytics  analytics.Sink
	pool       *workers.Pool
	logger     *zap.SugaredLogger
	opts       Options
}

// New creates a Service.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Classifier == nil || deps.Retriever == nil || deps.Generator == nil {
		return nil, fmt.Errorf("assistant: classifier, retriever and generator are required")
	}
	s := &Service{
		limiter:    deps.Limiter,
		guard:      deps.Guard,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		generator:  deps.Generator,
		tools:      deps.Tools,
		audit:      deps.Audit,
		analytics:  deps.Analytics,
		pool:       deps.Pool,
		logger:     deps.Logger,
		opts:       opts.withDefaults(),
	}
	if s.guard == nil {
		s.guard = guardrail.New(guardrail.DefaultMaxLength, nil)
	}
	if s.tools == nil {
		s.tools = tools.NewRegistry(
			tools.CalcFees{},
			tools.ContentSearch{Retriever: deps.Retriever},
			tools.LinkOut{},
		)
	}
	if s.analytics == nil {
		s.analytics = analytics.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s, nil
}

// Message is one turn of a conversation as sent by clients.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserContext describes where the user is on the site.
type UserContext struct {
	Geo          string   `json:"geo,omitempty"`
	Route        string   `json:"route,omitempty"`
	SessionFlags []string `json:"sessionFlags,omitempty"`
}

func (c UserContext) toMap() map[string]any {
	flags := c.SessionFlags
	if flags == nil {
		flags = []string{}
	}
	m := map[string]any{"sessionFlags": flags}
	if c.Geo != "" {
		m["geo"] = c.Geo
	}
	if c.Route != "" {
		m["route"] = c.Route
	}
	return m
}

// Request is one question to answer.
type Request struct {
	Route    string
	Messages []Message
	Context  UserContext
	// Greet prefixes the answer with a conversational opener.
	Greet bool
}

// LastUserMessage returns the most recent user turn.
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == string(llm.RoleUser) {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Sanitized returns a copy of r with whitespace runs in every turn
// collapsed. The pipeline and the audit transcript use this form.
func (r Request) Sanitized() Request {
	msgs := make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = Message{Role: m.Role, Content: guardrail.SanitizeWhitespace(m.Content)}
	}
	r.Messages = msgs
	return r
}

// Check applies the guardrail to msg and records rejections. msg must be
// the text as received, before any sanitizing.
func (s *Service) Check(ctx context.Context, route, msg string) guardrail.Result {
	res := s.guard.Evaluate(msg)
	if !res.Allowed {
		s.logger.Infow("guardrail rejected message", "route", route, "category", res.Category, "term", res.Term)
		s.analytics.Record(ctx, analytics.NewEvent(analytics.GuardrailsTriggered, map[string]any{
			"route":         route,
			"category":      string(res.Category),
			"messageLength": len([]rune(msg)),
		}))
	}
	return res
}

// Classify runs the intent classifier.
func (s *Service) Classify(query string) intent.Match {
	return s.classifier.Classify(query)
}

// Prepare runs classification, retrieval, tools and generation and
// returns the answer plan with the audit input describing it. Retrieval
// failures degrade to no citations; a timeout returns ErrGenerationTimeout.
func (s *Service) Prepare(ctx context.Context, req Request) (stream.Plan, audit.Input, error) {
	query := req.LastUserMessage()
	flags := mergeFlags(req.Context.SessionFlags, DeriveFlags(query))
	req.Context.SessionFlags = flags

	match := s.classifier.Classify(query)

	results, err := s.retrieve(ctx, query)
	if err != nil {
		return stream.Plan{}, audit.Input{}, err
	}
	citations := make([]stream.Citation, 0, len(results))
	sources := make([]llm.Source, 0, len(results))
	for _, r := range results {
		c := tools.CitationFor(r)
		citations = append(citations, c)
		sources = append(sources, llm.Source{Title: c.Title, Summary: c.Summary, URL: c.URL})
	}

	invocations := s.runTools(ctx, query, flags)
	citations = stream.DedupeCitations(append(citations, toolCitations(invocations)...))

	answer, err := s.generate(ctx, req.Messages, sources)
	if err != nil {
		return stream.Plan{}, audit.Input{}, err
	}
	response := compose(req, answer, invocations)

	signals := signalsFor(results, match, invocations)
	summary := confidence.Aggregate(signals, s.opts.FallbackConfidence)
	low := summary.Score < LowConfidenceThreshold || len(citations) == 0

	meta := map[string]any{
		"intent":       match.ID,
		"confidence":   summary.Score,
		"generator":    s.generator.Name(),
		"sessionFlags": flags,
	}
	if match.TargetPath != "" {
		meta["targetPath"] = match.TargetPath
	}

	plan := stream.Plan{
		System:        llm.SystemPrompt,
		Meta:          meta,
		Tools:         toolResults(invocations),
		Response:      response,
		Citations:     citations,
		LowConfidence: low,
	}

	fallback := s.opts.FallbackConfidence
	in := audit.Input{
		Route:       req.Route,
		UserContext: req.Context.toMap(),
		Messages:    auditMessages(req.Messages),
		Response:    response,
		Tools:       auditTools(invocations),
		Signals:     signals,
		Fallback:    &fallback,
	}
	return plan, in, nil
}

// Serve answers req on em. The audit record is written on the worker pool
// with its own context, so it completes even if the client goes away; the
// stream waits for it before the complete event.
func (s *Service) Serve(ctx context.Context, req Request, em stream.Emitter) error {
	plan, in, err := s.Prepare(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Errorw("failed to prepare answer", "route", req.Route, "error", err)
		if ferr := stream.Fail(em, stream.DefaultErrorMessage); ferr != nil {
			return ferr
		}
		return err
	}

	pending := s.submitAudit(in)
	plan.Finalize = func(ctx context.Context) error {
		select {
		case err := <-pending:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := stream.Stream(ctx, plan, em, s.opts.Stream); err != nil {
		return err
	}

	ids := make([]string, 0, len(plan.Citations))
	for _, c := range plan.Citations {
		ids = append(ids, c.Key())
	}
	s.analytics.Record(ctx, analytics.NewEvent(analytics.ResponseSent, map[string]any{
		"route":         req.Route,
		"citations":     ids,
		"lowConfidence": plan.LowConfidence,
	}))
	return nil
}

func (s *Service) submitAudit(in audit.Input) <-chan error {
	done := make(chan error, 1)
	if s.audit == nil {
		done <- nil
		return done
	}

	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		_, err := s.audit.Write(ctx, in)
		done <- err
	}

	if s.pool == nil {
		go write()
		return done
	}
	if err := s.pool.Submit(write); err != nil {
		s.logger.Warnw("audit pool unavailable, writing directly", "error", err)
		go write()
	}
	return done
}

func (s *Service) retrieve(ctx context.Context, query string) ([]vectordb.SearchResult, error) {
	results, err := withTimeout(ctx, s.opts.RetrievalTimeout, func(ctx context.Context) ([]vectordb.SearchResult, error) {
		return s.retriever.Search(ctx, query, s.opts.CitationLimit)
	})
	switch {
	case errors.Is(err, ErrGenerationTimeout):
		return nil, fmt.Errorf("retrieving sources: %w", err)
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warnw("retrieval failed, answering without sources", "error", err)
		return nil, nil
	}

	out := make([]vectordb.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) generate(ctx context.Context, history []Message, sources []llm.Source) (string, error) {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	req := llm.CompletionRequest{
		Model:    s.opts.Model,
		Messages: llm.BuildMessages(msgs, sources),
		Sources:  sources,
	}

	resp, err := withTimeout(ctx, s.opts.GenerationTimeout, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return s.generator.Complete(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("generating answer with %s: %w", s.generator.Name(), err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		s.logger.Warnw("generator returned an empty answer", "generator", s.generator.Name())
		return llm.NoSourcesAnswer, nil
	}
	return resp.Content, nil
}

// withTimeout runs fn with a deadline of d and stops waiting when it
// passes, even if fn ignores its context.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(tctx)
		ch <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-ch:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, ErrGenerationTimeout
		}
		return o.val, o.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrGenerationTimeout
	}
}

func signalsFor(results []vectordb.SearchResult, match intent.Match, invocations []tools.Invocation) []confidence.Signal {
	var top float64
	if len(results) > 0 {
		top = results[0].Score
	}
	signals := []confidence.Signal{
		{Source: confidence.SourceRetrieval, Score: top, Weight: 1, Rationale: fmt.Sprintf("%d sources", len(results))},
		{Source: confidence.SourceIntent, Score: match.Confidence, Weight: 1, Rationale: match.ID},
	}
	if len(invocations) > 0 {
		ok := 0
		for _, inv := range invocations {
			if inv.Success {
				ok++
			}
		}
		signals = append(signals, confidence.Signal{
			Source:    confidence.SourceTools,
			Score:     float64(ok) / float64(len(invocations)),
			Weight:    0.5,
			Rationale: fmt.Sprintf("%d/%d tools succeeded", ok, len(invocations)),
		})
	}
	return signals
}

func toolResults(invocations []tools.Invocation) []stream.ToolResult {
	out := make([]stream.ToolResult, 0, len(invocations))
	for _, inv := range invocations {
		out = append(out, stream.ToolResult{
			Call:   stream.ToolCall{Name: inv.Name, Args: inv.Arguments},
			Result: invocationResult(inv),
		})
	}
	return out
}

func invocationResult(inv tools.Invocation) any {
	if inv.Success {
		return inv.Result
	}
	return map[string]any{"error": inv.Error}
}

func auditTools(invocations []tools.Invocation) []audit.ToolInvocation {
	out := make([]audit.ToolInvocation, 0, len(invocations))
	for _, inv := range invocations {
		out = append(out, audit.ToolInvocation{
			Name:       inv.Name,
			Arguments:  inv.Arguments,
			Result:     invocationResult(inv),
			DurationMs: inv.DurationMs,
			Success:    inv.Success,
		})
	}
	return out
}

func auditMessages(msgs []Message) []audit.Message {
	out := make([]audit.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, audit.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
