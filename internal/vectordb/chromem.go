package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/embeddings"
)

const (
	collectionName = "content"
	persistFile    = "content.gob.gz"
)

// ChromemIndex is a Retriever backed by a chromem-go collection, which can
// be persisted to disk and reloaded without re-reading the content tree.
// chromem cannot store zero vectors, so documents without any alphabet
// symbols are kept under a placeholder embedding and filtered out of
// similarity queries; they always score 0.
type ChromemIndex struct {
	source   Source
	embedder embeddings.Embedder
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	docs       []content.Document
	embedded   int
	built      bool
}

// NewChromemIndex creates an empty, lazily built chromem index.
func NewChromemIndex(source Source, logger *zap.SugaredLogger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	embedder := embeddings.NewCharEmbedder()
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, embeddings.ToChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{
		source:     source,
		embedder:   embedder,
		logger:     logger,
		db:         db,
		collection: col,
	}, nil
}

// Build replaces the collection with docs.
func (c *ChromemIndex) Build(ctx context.Context, docs []content.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildLocked(ctx, docs)
}

func (c *ChromemIndex) buildLocked(ctx context.Context, docs []content.Document) error {
	docs = dedupe(docs)

	if err := c.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("reset collection: %w", err)
	}
	col, err := c.db.CreateCollection(collectionName, nil, embeddings.ToChromemFunc(c.embedder))
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.EmbeddingText()
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}

	chromDocs := make([]chromem.Document, len(docs))
	embedded := 0
	for i, d := range docs {
		vec := vectors[i]
		isEmbedded := !embeddings.IsZero(vec)
		if isEmbedded {
			embedded++
		} else {
			vec = placeholder()
		}
		chromDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Body,
			Embedding: vec,
			Metadata:  metadataFor(d, i, isEmbedded),
		}
	}
	if len(chromDocs) > 0 {
		if err := col.AddDocuments(ctx, chromDocs, 1); err != nil {
			return fmt.Errorf("adding documents: %w", err)
		}
	}

	c.collection = col
	c.docs = docs
	c.embedded = embedded
	c.built = true
	return nil
}

// Invalidate drops the built collection.
func (c *ChromemIndex) Invalidate() {
	c.mu.Lock()
	c.built = false
	c.docs = nil
	c.embedded = 0
	c.mu.Unlock()
}

// Count returns the number of stored documents.
func (c *ChromemIndex) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *ChromemIndex) ensureBuilt(ctx context.Context) bool {
	if c.built {
		return true
	}
	if c.source == nil {
		return false
	}
	docs, err := c.source(ctx)
	if err != nil {
		c.logger.Errorw("loading documents for index", "error", err)
		return false
	}
	if err := c.buildLocked(ctx, docs); err != nil {
		c.logger.Errorw("building chromem index", "error", err)
		return false
	}
	c.logger.Infow("index built", "documents", len(c.docs), "backend", "chromem")
	return true
}

// Search ranks documents with chromem's cosine similarity, then orders
// ties by document order.
func (c *ChromemIndex) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureBuilt(ctx) || len(c.docs) == 0 {
		return []SearchResult{}, nil
	}

	scores := make(map[string]float64, c.embedded)
	q := embeddings.CharVector(query)
	if c.embedded > 0 && !embeddings.IsZero(q) {
		found, err := c.collection.QueryEmbedding(ctx, q, c.embedded, map[string]string{"embedded": "true"}, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		for _, r := range found {
			scores[r.ID] = float64(r.Similarity)
		}
	}

	results := make([]SearchResult, len(c.docs))
	for i, d := range c.docs {
		results[i] = resultFor(d, scores[d.ID])
	}
	return rank(results, limit), nil
}

// Persist writes the collection to dir.
func (c *ChromemIndex) Persist(ctx context.Context, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureBuilt(ctx) {
		return fmt.Errorf("index has no documents to persist")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := c.db.ExportToFile(filepath.Join(dir, persistFile), true, ""); err != nil {
		return fmt.Errorf("export to file: %w", err)
	}
	return nil
}

// Load restores a collection written by Persist and marks the index built.
func (c *ChromemIndex) Load(ctx context.Context, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.ImportFromFile(filepath.Join(dir, persistFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}
	col := c.db.GetCollection(collectionName, embeddings.ToChromemFunc(c.embedder))
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}

	docs, embedded, err := readAll(ctx, col)
	if err != nil {
		return err
	}
	c.collection = col
	c.docs = docs
	c.embedded = embedded
	c.built = true
	return nil
}

// readAll enumerates a collection in its original document order.
func readAll(ctx context.Context, col *chromem.Collection) ([]content.Document, int, error) {
	n := col.Count()
	if n == 0 {
		return nil, 0, nil
	}
	uniform := make([]float32, embeddings.CharDimensions)
	for i := range uniform {
		uniform[i] = 1 / 6.0
	}
	found, err := col.QueryEmbedding(ctx, uniform, n, nil, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("reading collection: %w", err)
	}

	type ordered struct {
		ordinal int
		doc     content.Document
	}
	items := make([]ordered, len(found))
	embedded := 0
	for i, r := range found {
		ordinal, _ := strconv.Atoi(r.Metadata["ordinal"])
		order, _ := strconv.Atoi(r.Metadata["order"])
		if r.Metadata["embedded"] == "true" {
			embedded++
		}
		items[i] = ordered{ordinal: ordinal, doc: content.Document{
			ID:          r.ID,
			Type:        content.Type(r.Metadata["type"]),
			Slug:        r.Metadata["slug"],
			Title:       r.Metadata["title"],
			Summary:     r.Metadata["summary"],
			Category:    r.Metadata["category"],
			Order:       order,
			LastUpdated: r.Metadata["last_updated"],
			Body:        r.Content,
		}}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ordinal < items[j].ordinal })

	docs := make([]content.Document, len(items))
	for i, it := range items {
		docs[i] = it.doc
	}
	return docs, embedded, nil
}

func metadataFor(d content.Document, ordinal int, embedded bool) map[string]string {
	return map[string]string{
		"type":         string(d.Type),
		"slug":         d.Slug,
		"title":        d.Title,
		"summary":      d.Summary,
		"category":     d.Category,
		"order":        strconv.Itoa(d.Order),
		"last_updated": d.LastUpdated,
		"ordinal":      strconv.Itoa(ordinal),
		"embedded":     strconv.FormatBool(embedded),
	}
}

// placeholder is a unit vector stored for documents that embed to zero.
func placeholder() []float32 {
	v := make([]float32, embeddings.CharDimensions)
	v[0] = 1
	return v
}
