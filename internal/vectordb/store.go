package vectordb

import (
	"context"

	"github.com/ziadkadry99/assistd/internal/content"
)

// Retriever ranks indexed content documents against a query.
type Retriever interface {
	// Search returns at most limit results ordered by descending score.
	// Ties keep document order. An empty corpus yields an empty slice.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Invalidate drops the built index so the next search rebuilds it
	// from the source.
	Invalidate()
}

// Source supplies the documents an index is built from.
type Source func(ctx context.Context) ([]content.Document, error)

// StaticSource serves a fixed document set.
func StaticSource(docs []content.Document) Source {
	return func(context.Context) ([]content.Document, error) {
		return docs, nil
	}
}

// DirSource loads documents from a content directory on every build.
func DirSource(dir string, patterns []string) Source {
	return func(context.Context) ([]content.Document, error) {
		return content.Load(dir, patterns)
	}
}
