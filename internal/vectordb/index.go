package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/embeddings"
)

// Index is an in-memory Retriever. It is built lazily from its Source on
// the first search after construction or Invalidate, and concurrent first
// searches share one build.
type Index struct {
	source   Source
	embedder embeddings.Embedder
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	built   bool
	entries []entry
	builds  int
}

// NewIndex creates an Index that embeds with the character embedder.
func NewIndex(source Source, logger *zap.SugaredLogger) *Index {
	return NewIndexWithEmbedder(source, embeddings.NewCharEmbedder(), logger)
}

// NewIndexWithEmbedder creates an Index with a custom embedder.
func NewIndexWithEmbedder(source Source, embedder embeddings.Embedder, logger *zap.SugaredLogger) *Index {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Index{source: source, embedder: embedder, logger: logger}
}

// Build replaces the index contents with docs.
func (idx *Index) Build(ctx context.Context, docs []content.Document) error {
	entries, err := idx.embed(ctx, docs)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	idx.entries = entries
	idx.built = true
	idx.builds++
	idx.mu.Unlock()
	return nil
}

func (idx *Index) embed(ctx context.Context, docs []content.Document) ([]entry, error) {
	docs = dedupe(docs)
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.EmbeddingText()
	}
	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	entries := make([]entry, len(docs))
	for i, d := range docs {
		entries[i] = entry{doc: d, vector: vectors[i]}
	}
	return entries, nil
}

// Invalidate drops the current generation.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.built = false
	idx.entries = nil
	idx.mu.Unlock()
}

// Builds reports how many times the index has been built.
func (idx *Index) Builds() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.builds
}

// Len returns the number of indexed documents, building if needed.
func (idx *Index) Len(ctx context.Context) int {
	return len(idx.snapshot(ctx))
}

// snapshot returns the current entries, building them from the source on
// first use. A source failure is logged and leaves the index unbuilt so a
// later search retries.
func (idx *Index) snapshot(ctx context.Context) []entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.built {
		return idx.entries
	}
	if idx.source == nil {
		return nil
	}

	docs, err := idx.source(ctx)
	if err != nil {
		idx.logger.Errorw("loading documents for index", "error", err)
		return nil
	}
	entries, err := idx.embed(ctx, docs)
	if err != nil {
		idx.logger.Errorw("building index", "error", err)
		return nil
	}
	idx.entries = entries
	idx.built = true
	idx.builds++
	idx.logger.Infow("index built", "documents", len(entries), "embedder", idx.embedder.Name())
	return entries
}

// Search ranks every indexed document against query. limit <= 0 returns
// all of them.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := idx.snapshot(ctx)
	if len(entries) == 0 {
		return []SearchResult{}, nil
	}

	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	q := vecs[0]

	results := make([]SearchResult, len(entries))
	for i, e := range entries {
		results[i] = resultFor(e.doc, embeddings.Dot(q, e.vector))
	}
	return rank(results, limit), nil
}

// rank stable-sorts by descending score and truncates to limit.
func rank(results []SearchResult, limit int) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
