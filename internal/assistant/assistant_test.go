package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/assistd/internal/analytics"
	"github.com/ziadkadry99/assistd/internal/audit"
	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/db"
	"github.com/ziadkadry99/assistd/internal/intent"
	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/ratelimit"
	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/vectordb"
	"github.com/ziadkadry99/assistd/internal/workers"
)

type fixture struct {
	svc       *Service
	store     *audit.Store
	analytics *analytics.Dispatcher
	router    *chi.Mux
}

func contentDir(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", "content")
}

func setup(t *testing.T, mutate func(*Deps, *Options)) *fixture {
	t.Helper()

	docs, err := content.Load(contentDir(t), content.DefaultPatterns)
	require.NoError(t, err)

	classifier, err := intent.New(intent.StrategyKeyword, intent.DefaultTable(), intent.Options{})
	require.NoError(t, err)

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	store := audit.NewStore(database)

	pool, err := workers.New("test", workers.DefaultConfig(4), nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Release(time.Second) })

	dispatcher := analytics.NewDispatcher(analytics.NewBuffer(50), nil, nil, nil)

	deps := Deps{
		Classifier: classifier,
		Retriever:  vectordb.NewIndex(vectordb.StaticSource(docs), nil),
		Generator:  llm.NewTemplateProvider(),
		Audit:      audit.NewWriter(store, nil),
		Analytics:  dispatcher,
		Pool:       pool,
	}
	opts := Options{Stream: stream.Options{ChunkSize: 64}}
	if mutate != nil {
		mutate(&deps, &opts)
	}

	svc, err := New(deps, opts)
	require.NoError(t, err)

	r := chi.NewRouter()
	RegisterRoutes(r, svc)
	return &fixture{svc: svc, store: store, analytics: dispatcher, router: r}
}

func (f *fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	return n
}

func (f *fixture) eventNames() []analytics.Name {
	var names []analytics.Name
	for _, e := range f.analytics.Buffer().Recent(0) {
		names = append(names, e.Name)
	}
	return names
}

func parseSSE(t *testing.T, body string) []stream.Event {
	t.Helper()
	var events []stream.Event
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var e stream.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func parseNDJSON(t *testing.T, body string) []stream.Event {
	t.Helper()
	var events []stream.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var e stream.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	return events
}

func tokens(events []stream.Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type == stream.TypeToken {
			b.WriteString(e.Value)
		}
	}
	return b.String()
}

func types(events []stream.Event) []stream.Type {
	out := make([]stream.Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestAssistant_StreamsAnswer(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant", `{"message":"How do I renew my vehicle registration?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, stream.TypeStart, events[0].Type)
	assert.Equal(t, stream.TypeMeta, events[1].Type)
	assert.Equal(t, "renewal", events[1].Meta["intent"])

	last := events[len(events)-1]
	require.Equal(t, stream.TypeComplete, last.Type)
	var titles []string
	for _, c := range last.Citations {
		titles = append(titles, c.Title)
	}
	assert.Contains(t, titles, "Vehicle Registration Renewal")
	assert.Contains(t, tokens(events), "Here is what I found:")

	// The audit write completes before the terminal event.
	assert.Equal(t, 1, f.auditCount(t))
	recs, err := f.store.Query(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, RouteAssistant, recs[0].Route)
	assert.Equal(t, tokens(events), recs[0].Response)

	assert.Contains(t, f.eventNames(), analytics.ResponseSent)
}

func TestAssistant_RedactsAuditedMessages(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant", `{"message":"Renew my license, email me at jane@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	recs, err := f.store.Query(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, recs[0].Messages[0].Text(), "jane@example.com")
	assert.GreaterOrEqual(t, recs[0].PIIRedactions, 1)
}

func TestAssistant_RejectsBadInput(t *testing.T) {
	f := setup(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "Missing message"},
		{"missing", `{}`, "Missing message"},
		{"blank", `{"message":"   "}`, "Missing message"},
		{"not a string", `{"message":5}`, "Missing message"},
		{"blocked term", `{"message":"how do I hack the portal"}`, `The request cannot include the term "hack".`},
		{"too long", `{"message":"` + strings.Repeat("a", 1001) + `"}`, "The request is too long. Please shorten your question."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.post(t, "/api/assistant", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
		})
	}

	assert.Equal(t, 0, f.auditCount(t))
	assert.Contains(t, f.eventNames(), analytics.GuardrailsTriggered)
}

func TestAssistant_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0)
	t.Cleanup(limiter.Stop)
	f := setup(t, func(d *Deps, o *Options) {
		d.Limiter = limiter
		o.AssistantPolicy = ratelimit.Policy{Prefix: "assistant", Window: time.Minute, Max: 1}
	})

	first := f.post(t, "/api/assistant", `{"message":"renew my permit"}`)
	assert.Equal(t, http.StatusOK, first.Code)

	second := f.post(t, "/api/assistant", `{"message":"renew my permit"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, 1, f.auditCount(t))
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAssistant_GenerationTimeout(t *testing.T) {
	f := setup(t, func(d *Deps, o *Options) {
		d.Generator = blockingProvider{}
		o.GenerationTimeout = 20 * time.Millisecond
	})

	w := f.post(t, "/api/assistant", `{"message":"renew my permit"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, stream.TypeError, events[0].Type)
	assert.Equal(t, stream.DefaultErrorMessage, events[0].Message)
	assert.Equal(t, 0, f.auditCount(t))
}

type failingSink struct{}

func (failingSink) Create(context.Context, *audit.Record) error {
	return errors.New("disk full")
}

func TestAssistant_AuditFailureEndsWithError(t *testing.T) {
	f := setup(t, func(d *Deps, o *Options) {
		d.Audit = audit.NewWriter(failingSink{}, nil)
	})

	w := f.post(t, "/api/assistant", `{"message":"renew my permit"}`)
	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, stream.TypeError, last.Type)
	assert.NotContains(t, types(events), stream.TypeComplete)
	assert.NotContains(t, f.eventNames(), analytics.ResponseSent)
}

func TestService_AuditSurvivesDisconnect(t *testing.T) {
	f := setup(t, func(d *Deps, o *Options) {
		o.Stream = stream.Options{ChunkSize: 8, Delay: 5 * time.Millisecond}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	em := stream.EmitterFunc(func(e stream.Event) error {
		if e.Type == stream.TypeToken {
			cancel()
		}
		return nil
	})

	req := Request{Route: RouteAssistant, Messages: []Message{{Role: "user", Content: "renew my registration"}}}
	err := f.svc.Serve(ctx, req, em)
	require.ErrorIs(t, err, context.Canceled)

	assert.Eventually(t, func() bool { return f.auditCount(t) == 1 }, time.Second, 10*time.Millisecond)
}

func TestChat_StreamsNDJSONWithTools(t *testing.T) {
	f := setup(t, nil)

	body := `{"messages":[{"role":"user","content":"What does  membership\n cost? Can I talk to someone?"}],"context":{"route":"/services"}}`
	w := f.post(t, "/api/assistant/chat", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	events := parseNDJSON(t, w.Body.String())
	var toolNames []string
	for _, e := range events {
		if e.Type == stream.TypeTool {
			toolNames = append(toolNames, e.Tool.Name)
		}
	}
	assert.Equal(t, []string{"calc.fees", "link.out"}, toolNames)

	text := tokens(events)
	assert.True(t, strings.HasPrefix(text, "Thanks for reaching out while browsing /services."), text)
	assert.Contains(t, text, "It sounds like you're exploring membership.")
	assert.Contains(t, text, "about $125 USD per year.")

	last := events[len(events)-1]
	require.Equal(t, stream.TypeComplete, last.Type)
	var urls []string
	for _, c := range last.Citations {
		urls = append(urls, c.URL)
	}
	assert.Contains(t, urls, "/membership")

	recs, err := f.store.Query(context.Background(), audit.QueryFilter{Route: RouteChat})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Tools, 2)
	assert.Equal(t, []any{FlagMembership}, recs[0].UserContext["sessionFlags"])
	assert.Equal(t, "What does membership cost? Can I talk to someone?", recs[0].Messages[0].Text())
}

func TestChat_Validation(t *testing.T) {
	f := setup(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"messages":`, "Invalid JSON body."},
		{"no messages", `{"messages":[]}`, "No messages provided."},
		{"no user message", `{"messages":[{"role":"assistant","content":"hi"}]}`, "A user message is required."},
		{"blank user message", `{"messages":[{"role":"user","content":"  "}]}`, "A user message is required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.post(t, "/api/assistant/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestChat_GuardrailStreamsRefusal(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant/chat", `{"messages":[{"role":"user","content":"where can I buy a weapon"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseNDJSON(t, w.Body.String())
	last := events[len(events)-1]
	require.Equal(t, stream.TypeComplete, last.Type)
	assert.True(t, last.LowConfidence)
	assert.Empty(t, last.Citations)
	assert.Equal(t, "The request includes language we cannot assist with.", tokens(events))
	assert.Equal(t, 0, f.auditCount(t))
}

func TestLengthLimitCountsRawWhitespace(t *testing.T) {
	f := setup(t, nil)
	padded := "renew" + strings.Repeat(" ", 1500) + "vehicle"
	const tooLong = "The request is too long. Please shorten your question."

	w := f.post(t, "/api/assistant", `{"message":"`+padded+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, tooLong, body["error"])

	w = f.post(t, "/api/assistant/chat", `{"messages":[{"role":"user","content":"`+padded+`"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	events := parseNDJSON(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, stream.TypeComplete, last.Type)
	assert.True(t, last.LowConfidence)
	assert.Equal(t, tooLong, tokens(events))

	assert.Equal(t, 0, f.auditCount(t))
}

func TestAssistant_AuditsCollapsedWhitespace(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant", `{"message":"How do I   renew\n\nmy registration?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	recs, err := f.store.Query(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "How do I renew my registration?", recs[0].Messages[0].Text())
}

func TestRequestSanitized(t *testing.T) {
	req := Request{Route: RouteChat, Messages: []Message{
		{Role: "user", Content: "a \t b"},
		{Role: "assistant", Content: "c\n\nd"},
	}}
	got := req.Sanitized()
	assert.Equal(t, "a b", got.Messages[0].Content)
	assert.Equal(t, "c d", got.Messages[1].Content)
	assert.Equal(t, "a \t b", req.Messages[0].Content)
	assert.Equal(t, RouteChat, got.Route)
}

type emptyProvider struct{}

func (emptyProvider) Name() string { return "empty" }

func (emptyProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "  "}, nil
}

func TestAssistant_EmptyGeneratorAnswer(t *testing.T) {
	f := setup(t, func(d *Deps, o *Options) {
		d.Generator = emptyProvider{}
	})

	w := f.post(t, "/api/assistant", `{"message":"renew my permit"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	assert.Contains(t, types(events), stream.TypeToken)
	assert.Equal(t, llm.NoSourcesAnswer, tokens(events))
	assert.Equal(t, stream.TypeComplete, events[len(events)-1].Type)
}

func TestIntentEndpoint(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant/intent", `{"query":"I need to renew my boat registration"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "I need to renew my boat registration", resp["query"])
	assert.Equal(t, "renewal", resp["intent"])
	assert.Equal(t, "Renew a License", resp["title"])
	assert.Equal(t, map[string]any{"vehicle": "boat", "document": "registration"}, resp["slots"])
	assert.NotEmpty(t, resp["recommendedActions"])

	w = f.post(t, "/api/assistant/intent", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Query text is required.")

	for _, body := range []string{`{`, `{"query":5}`} {
		w = f.post(t, "/api/assistant/intent", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
		assert.Contains(t, w.Body.String(), "Invalid JSON body.")
	}
}

func TestIntentEndpoint_Unknown(t *testing.T) {
	f := setup(t, nil)

	w := f.post(t, "/api/assistant/intent", `{"query":"zzz qqq"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, intent.UnknownID, resp["intent"])
	assert.Equal(t, intent.DefaultFallbackPath, resp["targetPath"])
	assert.Equal(t, map[string]any{}, resp["slots"])
}

func TestSearchEndpoint(t *testing.T) {
	f := setup(t, func(d *Deps, o *Options) { o.SearchLimit = 2 })

	w := f.post(t, "/api/search", `{"query":"business tax"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []vectordb.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)

	w = f.post(t, "/api/search", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing query")
}

func TestSearchEndpoint_RateLimitedSeparately(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0)
	t.Cleanup(limiter.Stop)
	f := setup(t, func(d *Deps, o *Options) {
		d.Limiter = limiter
		o.AssistantPolicy = ratelimit.Policy{Max: 1}
		o.SearchPolicy = ratelimit.Policy{Max: 1}
	})

	assert.Equal(t, http.StatusOK, f.post(t, "/api/assistant", `{"message":"renew my permit"}`).Code)
	assert.Equal(t, http.StatusOK, f.post(t, "/api/search", `{"query":"tax"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.post(t, "/api/search", `{"query":"tax"}`).Code)
}

func readUntilTerminal(t *testing.T, conn *websocket.Conn) []stream.Event {
	t.Helper()
	var events []stream.Event
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var e stream.Event
		require.NoError(t, conn.ReadJSON(&e))
		events = append(events, e)
		if e.Type == stream.TypeComplete || e.Type == stream.TypeError {
			return events
		}
	}
}

func TestSocket(t *testing.T) {
	f := setup(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/assistant/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "message", "message": "renew my registration"}))
	events := readUntilTerminal(t, conn)
	assert.Equal(t, stream.TypeStart, events[0].Type)
	assert.Equal(t, stream.TypeComplete, events[len(events)-1].Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	events = readUntilTerminal(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, "invalid message format", events[0].Message)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "shout"}))
	events = readUntilTerminal(t, conn)
	assert.Equal(t, "unknown message type: shout", events[0].Message)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":     "chat",
		"messages": []map[string]string{{"role": "user", "content": "when is the next event?"}},
	}))
	events = readUntilTerminal(t, conn)
	assert.Equal(t, stream.TypeComplete, events[len(events)-1].Type)
	assert.Contains(t, types(events), stream.TypeTool)

	assert.Equal(t, 2, f.auditCount(t))
}

func TestDeriveFlags(t *testing.T) {
	assert.Equal(t, []string{FlagMembership, FlagEvent}, DeriveFlags("How do I JOIN before the event?"))
	assert.Equal(t, []string{FlagVolunteer}, DeriveFlags("volunteer shifts"))
	assert.Empty(t, DeriveFlags("renew my permit"))
}

func TestMergeFlags(t *testing.T) {
	got := mergeFlags([]string{FlagEvent, ""}, []string{FlagMembership, FlagEvent})
	assert.Equal(t, []string{FlagEvent, FlagMembership}, got)
}

func TestPlanTools(t *testing.T) {
	calls := planTools("Any grant programs? What's the price?", nil, "https://example.gov/contact")
	require.Len(t, calls, 2)
	assert.Equal(t, "calc.fees", calls[0].Name)
	assert.Equal(t, "content.search", calls[1].Name)

	calls = planTools("hello", []string{FlagEvent}, "https://example.gov/contact")
	require.Len(t, calls, 1)
	assert.Equal(t, "content.search", calls[0].Name)

	assert.Empty(t, planTools("renew my permit", nil, ""))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}
