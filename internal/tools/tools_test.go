package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

func TestCalcFees(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want float64
	}{
		{"membership default", map[string]any{"type": "membership"}, 125},
		{"membership 12 months", map[string]any{"type": "membership", "params": map[string]any{"duration": 12.0}}, 125},
		{"membership 13 months", map[string]any{"type": "Membership", "params": map[string]any{"duration": 13.0}}, 250},
		{"membership scholarship", map[string]any{"type": "membership", "params": map[string]any{"scholarship": true}}, 75},
		{"membership string duration", map[string]any{"type": "membership", "params": map[string]any{"duration": "24"}}, 250},
		{"event", map[string]any{"type": "event", "params": map[string]any{"attendees": 10.0, "days": 2.0}}, 900},
		{"event defaults", map[string]any{"type": "event"}, 45},
		{"consultation", map[string]any{"type": "other"}, 125},
		{"no type", nil, 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcFees{}.Run(context.Background(), tt.args)
			require.NoError(t, err)
			est := got.(FeeEstimate)
			assert.Equal(t, tt.want, est.Estimate)
			assert.Equal(t, "USD", est.Currency)
			assert.NotEmpty(t, est.Assumptions)
		})
	}
}

func TestCalcFees_InvalidArgs(t *testing.T) {
	bad := []map[string]any{
		{"type": "membership", "params": map[string]any{"duration": "twelve"}},
		{"type": "membership", "params": map[string]any{"duration": 0.0}},
		{"type": "event", "params": map[string]any{"days": -1.0}},
		{"type": "event", "params": map[string]any{"attendees": []any{1}}},
	}
	for _, args := range bad {
		_, err := CalcFees{}.Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrInvalidArgs, "%v", args)
	}
}

func TestLinkOut(t *testing.T) {
	got, err := LinkOut{}.Run(context.Background(), map[string]any{"url": " https://example.org/contact "})
	require.NoError(t, err)
	assert.Equal(t, Link{URL: "https://example.org/contact", Label: DefaultLinkLabel}, got)

	got, err = LinkOut{}.Run(context.Background(), map[string]any{"url": "http://x.test", "label": "Call us"})
	require.NoError(t, err)
	assert.Equal(t, "Call us", got.(Link).Label)

	for _, url := range []string{"", "/contact", "ftp://x.test", "javascript:alert(1)"} {
		_, err := LinkOut{}.Run(context.Background(), map[string]any{"url": url})
		require.ErrorIs(t, err, ErrInvalidArgs, url)
		assert.Contains(t, err.Error(), "link.out requires an absolute http(s) URL")
	}
}

func testRetriever() vectordb.Retriever {
	docs := []content.Document{
		{ID: "services:vehicle-renewal", Type: content.TypeServices, Slug: "vehicle-renewal", Title: "Vehicle Renewal", Summary: "Renew your vehicle registration online.", Category: "vehicles"},
		{ID: "services:business-tax", Type: content.TypeServices, Slug: "business-tax", Title: "Business Tax Receipt", Summary: "File and pay the local business tax.", Category: "business"},
		{ID: "fees:renewal-fees", Type: content.TypeFees, Slug: "renewal-fees", Title: "Renewal Fees", Summary: "Fee table for vehicle renewals.", Category: "vehicles"},
	}
	return vectordb.NewIndex(vectordb.StaticSource(docs), nil)
}

func TestContentSearch(t *testing.T) {
	cs := ContentSearch{Retriever: testRetriever()}

	got, err := cs.Run(context.Background(), map[string]any{"q": "Vehicle renewal"})
	require.NoError(t, err)
	res := got.(SearchResult)
	require.Len(t, res.Matches, 2)
	for _, m := range res.Matches {
		lower := strings.ToLower(m.Title + " " + m.Summary)
		assert.Contains(t, lower, "vehicle")
		assert.Contains(t, lower, "renew")
	}
	assert.True(t, strings.HasPrefix(res.Matches[0].URL, "/"))

	got, err = cs.Run(context.Background(), map[string]any{"q": "marriage license"})
	require.NoError(t, err)
	assert.Empty(t, got.(SearchResult).Matches)

	_, err = cs.Run(context.Background(), map[string]any{"q": "  "})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestContentSearch_Limit(t *testing.T) {
	cs := ContentSearch{Retriever: testRetriever(), Limit: 1}
	got, err := cs.Run(context.Background(), map[string]any{"q": "vehicle"})
	require.NoError(t, err)
	assert.Len(t, got.(SearchResult).Matches, 1)
}

func TestCitationFor(t *testing.T) {
	c := CitationFor(vectordb.SearchResult{ID: "faqs:office-hours", Type: content.TypeFAQs, Slug: "office-hours", Title: "Office Hours"})
	assert.Equal(t, "/faqs/office-hours", c.URL)
	assert.Equal(t, c.URL, c.Key())
}

type failingTool struct{}

func (failingTool) Name() string { return "broken" }
func (failingTool) Run(context.Context, map[string]any) (any, error) {
	return nil, errors.New("boom")
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry(CalcFees{}, LinkOut{}, failingTool{})
	assert.Equal(t, []string{"broken", "calc.fees", "link.out"}, r.Names())

	inv := r.Invoke(context.Background(), Call{Name: "calc.fees", Args: map[string]any{"type": "membership"}})
	assert.True(t, inv.Success)
	assert.Equal(t, "calc.fees", inv.Name)
	assert.Equal(t, 125.0, inv.Result.(FeeEstimate).Estimate)
	assert.GreaterOrEqual(t, inv.DurationMs, int64(0))

	inv = r.Invoke(context.Background(), Call{Name: "broken"})
	assert.False(t, inv.Success)
	assert.Equal(t, "boom", inv.Error)
	assert.Nil(t, inv.Result)

	inv = r.Invoke(context.Background(), Call{Name: "nope"})
	assert.False(t, inv.Success)
	assert.Contains(t, inv.Error, ErrUnknownTool.Error())
}
