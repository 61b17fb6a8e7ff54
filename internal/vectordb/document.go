package vectordb

import "github.com/ziadkadry99/assistd/internal/content"

// SearchResult is one ranked document. Score is the cosine similarity
// between the query and document embeddings.
type SearchResult struct {
	ID       string       `json:"id"`
	Type     content.Type `json:"type"`
	Slug     string       `json:"slug"`
	Title    string       `json:"title"`
	Summary  string       `json:"summary"`
	Category string       `json:"category,omitempty"`
	Score    float64      `json:"score"`
}

// entry is an indexed document with its embedding.
type entry struct {
	doc    content.Document
	vector []float32
}

func resultFor(doc content.Document, score float64) SearchResult {
	return SearchResult{
		ID:       doc.ID,
		Type:     doc.Type,
		Slug:     doc.Slug,
		Title:    doc.Title,
		Summary:  doc.Summary,
		Category: doc.Category,
		Score:    score,
	}
}

// dedupe keeps the last document for each id at the position of its
// first occurrence.
func dedupe(docs []content.Document) []content.Document {
	pos := make(map[string]int, len(docs))
	out := make([]content.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}
