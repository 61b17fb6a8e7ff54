package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

// DefaultSearchLimit caps content.search matches.
const DefaultSearchLimit = 3

// SearchResult is the result of content.search.
type SearchResult struct {
	Matches []stream.Citation `json:"matches"`
	Took    int64             `json:"took"`
}

// ContentSearch finds documents whose title, summary or category contain
// every query token, ranked by retriever score. Arguments: {"q"}.
type ContentSearch struct {
	Retriever vectordb.Retriever
	Limit     int
}

func (ContentSearch) Name() string { return "content.search" }

func (c ContentSearch) Run(ctx context.Context, args map[string]any) (any, error) {
	q := str(args, "q")
	if q == "" {
		return nil, fmt.Errorf("%w: q is required", ErrInvalidArgs)
	}
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	ranked, err := c.Retriever.Search(ctx, q, 0)
	if err != nil {
		return nil, fmt.Errorf("content.search: %w", err)
	}

	tokens := strings.Fields(strings.ToLower(q))
	matches := []stream.Citation{}
	for _, r := range ranked {
		if len(matches) == limit {
			break
		}
		haystack := strings.ToLower(r.Title + " " + r.Summary + " " + r.Category)
		if !containsAll(haystack, tokens) {
			continue
		}
		matches = append(matches, CitationFor(r))
	}

	return SearchResult{Matches: matches, Took: time.Since(start).Milliseconds()}, nil
}

func containsAll(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// CitationFor converts a search result to a citation linking to the
// document page, /<type>/<slug>.
func CitationFor(r vectordb.SearchResult) stream.Citation {
	return stream.Citation{
		ID:       r.ID,
		Slug:     r.Slug,
		Title:    r.Title,
		Summary:  r.Summary,
		URL:      "/" + string(r.Type) + "/" + r.Slug,
		Category: r.Category,
		Score:    r.Score,
	}
}
