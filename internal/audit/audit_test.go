package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/ziadkadry99/assistd/internal/confidence"
	"github.com/ziadkadry99/assistd/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRedactText_EmailAndPhone(t *testing.T) {
	in := "Contact me at a@b.com or 555-123-4567"
	got := RedactText(in)

	if got.Redactions != 2 {
		t.Fatalf("Redactions = %d, want 2 (%v)", got.Redactions, got.Breakdown)
	}
	if strings.Contains(got.Text, "a@b.com") || strings.Contains(got.Text, "555-123-4567") {
		t.Errorf("residual PII in %q", got.Text)
	}
	want := "Contact me at [redacted-email] or [redacted-phone]"
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestRedactText_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     string
		category string
	}{
		{"ssn before phone", "ssn 123-45-6789", "ssn [redacted-ssn]", "ssn"},
		{"card before phone", "card 4111 1111 1111 1111", "card [redacted-card]", "creditCard"},
		{"secret", "key sk_abcdefghijklmnop1234", "key [redacted-secret]", "apiKey"},
		{"url before email", "see https://x.org/u?m=a@b.com", "see [redacted-url]", "url"},
		{"parenthesised phone", "call (555) 123-4567", "call [redacted-phone]", "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactText(tt.in)
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
			if got.Redactions != 1 || got.Breakdown[tt.category] != 1 {
				t.Errorf("Breakdown = %v, want one %s", got.Breakdown, tt.category)
			}
		})
	}
}

func TestRedactText_Clean(t *testing.T) {
	got := RedactText("How do I renew my license?")
	if got.Redactions != 0 || got.Text != "How do I renew my license?" {
		t.Errorf("unexpected redaction: %+v", got)
	}
}

func TestRedactConversation_Segments(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "mail a@b.com"},
		{Role: "assistant", Segments: []Segment{
			{Type: "text", Text: "call 555-123-4567"},
			{Type: "link", Data: map[string]any{"href": "https://example.org"}},
			{Type: "text", Text: "or c@d.org"},
		}},
	}

	got := RedactConversation(msgs)

	if got.TotalRedactions != 3 {
		t.Errorf("TotalRedactions = %d, want 3", got.TotalRedactions)
	}
	if got.Breakdown["email"] != 2 || got.Breakdown["phone"] != 1 {
		t.Errorf("Breakdown = %v", got.Breakdown)
	}
	if got.Messages[0].Content != "mail [redacted-email]" {
		t.Errorf("message 0 = %q", got.Messages[0].Content)
	}
	if got.Messages[1].Segments[0].Text != "call [redacted-phone]" {
		t.Errorf("segment 0 = %q", got.Messages[1].Segments[0].Text)
	}
	if msgs[0].Content != "mail a@b.com" || msgs[1].Segments[0].Text != "call 555-123-4567" {
		t.Error("input was modified")
	}
}

func TestMessageJSON(t *testing.T) {
	var plain Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hi"}`), &plain); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if plain.Content != "hi" || plain.Segments != nil {
		t.Errorf("plain = %+v", plain)
	}

	var rich Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`), &rich); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rich.Text() != "a b" {
		t.Errorf("Text() = %q, want %q", rich.Text(), "a b")
	}

	data, err := json.Marshal(rich)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"content":[{"type":"text","text":"a"}`) {
		t.Errorf("Marshal = %s", data)
	}

	var bad Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":42}`), &bad); err == nil {
		t.Error("expected error for numeric content")
	}
}

func TestTrimResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"under", "abc", 4, "abc"},
		{"exact", "abcd", 4, "abcd"},
		{"over", "abcde", 4, "abc…"},
		{"runes", "ééééé", 4, "ééé…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimResponse(tt.in, tt.max); got != tt.want {
				t.Errorf("TrimResponse(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 4001)
	got := TrimResponse(long, DefaultMaxResponseChars)
	if n := len([]rune(got)); n != 4000 {
		t.Errorf("trimmed length = %d, want 4000", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("expected ellipsis suffix")
	}
}

func TestWriter_WriteAndRead(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWriter(store, nil, WithClock(fixedClock(now)))

	res, err := w.Write(ctx, Input{
		Route:       "/api/assistant",
		UserContext: map[string]any{"ip": "10.0.0.1"},
		Messages:    []Message{{Role: "user", Content: "Contact me at a@b.com or 555-123-4567"}},
		Response:    "We will email a@b.com",
		Tools:       []ToolInvocation{{Name: "content.search", DurationMs: 3, Success: true}},
		Signals: []confidence.Signal{
			{Source: confidence.SourceRetrieval, Score: 1, Weight: 1},
			{Source: confidence.SourceIntent, Score: 0, Weight: 1},
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Redactions != 3 {
		t.Errorf("Redactions = %d, want 3", res.Redactions)
	}
	if res.ConfidenceSummary.Score != 0.5 {
		t.Errorf("confidence = %v, want 0.5", res.ConfidenceSummary.Score)
	}

	got, err := store.GetByID(ctx, res.Record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Messages[0].Content != "Contact me at [redacted-email] or [redacted-phone]" {
		t.Errorf("stored message = %q", got.Messages[0].Content)
	}
	if got.Response != "We will email [redacted-email]" {
		t.Errorf("stored response = %q", got.Response)
	}
	if got.PIIRedactions != 3 {
		t.Errorf("PIIRedactions = %d, want 3", got.PIIRedactions)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "content.search" {
		t.Errorf("Tools = %+v", got.Tools)
	}
	if len(got.ConfidenceSummary.Signals) != 2 {
		t.Errorf("summary signals = %d, want 2", len(got.ConfidenceSummary.Signals))
	}
}

func TestWriter_ExplicitConfidence(t *testing.T) {
	store := setupStore(t)
	w := NewWriter(store, nil)
	score := 1.7

	res, err := w.Write(context.Background(), Input{Route: "/api/assistant/chat", Confidence: &score})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Record.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", res.Record.Confidence)
	}
	if res.ConfidenceSummary.RawScore != 1.7 {
		t.Errorf("RawScore = %v, want 1.7", res.ConfidenceSummary.RawScore)
	}
}

func TestWriter_Fallback(t *testing.T) {
	store := setupStore(t)
	w := NewWriter(store, nil, WithFallbackConfidence(0.3))

	res, err := w.Write(context.Background(), Input{Route: "/api/assistant"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Record.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3", res.Record.Confidence)
	}
}

func TestWriter_TrimsLongResponse(t *testing.T) {
	store := setupStore(t)
	w := NewWriter(store, nil, WithMaxResponseChars(10))

	res, err := w.Write(context.Background(), Input{Route: "/r", Response: strings.Repeat("y", 50)})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Record.Response != "yyyyyyyyy…" {
		t.Errorf("Response = %q", res.Record.Response)
	}
}

type failingSink struct{}

func (failingSink) Create(context.Context, *Record) error {
	return errors.New("disk full")
}

func TestWriter_PropagatesSinkFailure(t *testing.T) {
	w := NewWriter(failingSink{}, nil)
	res, err := w.Write(context.Background(), Input{Route: "/api/assistant"})
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v, want wrapped sink error", err)
	}
}

func seedRecords(t *testing.T, store *Store) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		{ID: "a", Route: "/api/assistant", PIIRedactions: 0, Confidence: 0.9, CreatedAt: base},
		{ID: "b", Route: "/api/assistant/chat", PIIRedactions: 2, Confidence: 0.4, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Route: "/api/assistant", PIIRedactions: 1, Confidence: 0.2, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range recs {
		recs[i].Messages = []Message{{Role: "user", Content: "hello " + recs[i].ID}}
		if err := store.Create(context.Background(), &recs[i]); err != nil {
			t.Fatalf("Create %s: %v", recs[i].ID, err)
		}
	}
}

func TestStore_Query(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedRecords(t, store)

	all, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}

	byRoute, _ := store.Query(ctx, QueryFilter{Route: "/api/assistant"})
	if len(byRoute) != 2 {
		t.Errorf("route filter: got %d, want 2", len(byRoute))
	}

	since := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	recent, _ := store.Query(ctx, QueryFilter{Since: &since})
	if len(recent) != 2 {
		t.Errorf("since filter: got %d, want 2", len(recent))
	}

	redacted, _ := store.Query(ctx, QueryFilter{MinRedactions: 1})
	if len(redacted) != 2 {
		t.Errorf("redaction filter: got %d, want 2", len(redacted))
	}

	maxConf := 0.5
	low, _ := store.Query(ctx, QueryFilter{MaxConfidence: &maxConf})
	if len(low) != 2 {
		t.Errorf("confidence filter: got %d, want 2", len(low))
	}

	page, _ := store.Query(ctx, QueryFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("page = %v, want [b]", ids(page))
	}

	n, err := store.Count(ctx, QueryFilter{Route: "/api/assistant", Limit: 1})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestStore_GetByIDNotFound(t *testing.T) {
	store := setupStore(t)
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestExport(t *testing.T) {
	store := setupStore(t)
	seedRecords(t, store)
	path := filepath.Join(t.TempDir(), "audit.xlsx")

	n, err := Export(context.Background(), store, QueryFilter{}, path)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Errorf("exported %d rows, want 3", n)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(ExportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] != "c" {
		t.Errorf("unexpected rows: %v", rows[:2])
	}
	if rows[1][6] != "user: hello c" {
		t.Errorf("transcript = %q", rows[1][6])
	}
}

func TestRoutes(t *testing.T) {
	store := setupStore(t)
	seedRecords(t, store)

	r := chi.NewRouter()
	RegisterRoutes(r, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/?route=/api/assistant&limit=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var page struct {
		Records []Record `json:"records"`
		Total   int      `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Records) != 1 || page.Total != 2 {
		t.Errorf("got %d records, total %d; want 1, 2", len(page.Records), page.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/audit/b", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	var rec Record
	json.NewDecoder(w.Body).Decode(&rec)
	if rec.ID != "b" || rec.Messages[0].Content != "hello b" {
		t.Errorf("record = %+v", rec)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/audit/nope", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected error body")
	}
}
