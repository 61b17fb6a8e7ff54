// Package stream delivers an assembled answer as an ordered sequence of
// typed events: start, meta, tool calls, paced token chunks and a single
// terminal complete or error event.
package stream

import (
	"encoding/json"
	"unicode/utf8"
)

// Type discriminates events on the wire.
type Type string

const (
	TypeStart    Type = "start"
	TypeMeta     Type = "meta"
	TypeTool     Type = "tool"
	TypeToken    Type = "token"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// DefaultErrorMessage is sent when generation fails after the stream began.
const DefaultErrorMessage = "Unable to stream response"

// Citation is a grounding document shown alongside an answer.
type Citation struct {
	ID       string  `json:"id,omitempty"`
	Slug     string  `json:"slug,omitempty"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary,omitempty"`
	URL      string  `json:"url,omitempty"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// Key identifies a citation for de-duplication: URL, then slug, then title.
func (c Citation) Key() string {
	switch {
	case c.URL != "":
		return c.URL
	case c.Slug != "":
		return c.Slug
	default:
		return c.Title
	}
}

// DedupeCitations keeps the first citation per Key, preserving order.
func DedupeCitations(in []Citation) []Citation {
	seen := make(map[string]bool, len(in))
	out := make([]Citation, 0, len(in))
	for _, c := range in {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// ToolCall names a tool and the arguments it was invoked with.
type ToolCall struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

// Event is one item in the stream.
type Event struct {
	Type          Type           `json:"type"`
	System        string         `json:"system,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	Tool          *ToolCall      `json:"tool,omitempty"`
	Result        any            `json:"result,omitempty"`
	Value         string         `json:"value,omitempty"`
	Citations     []Citation     `json:"citations,omitempty"`
	LowConfidence bool           `json:"lowConfidence,omitempty"`
	Message       string         `json:"message,omitempty"`
}

type eventAlias Event

// MarshalJSON always writes citations and lowConfidence on complete events
// so that clients can rely on both fields being present.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type != TypeComplete {
		return json.Marshal(eventAlias(e))
	}
	citations := e.Citations
	if citations == nil {
		citations = []Citation{}
	}
	return json.Marshal(struct {
		eventAlias
		Citations     []Citation `json:"citations"`
		LowConfidence bool       `json:"lowConfidence"`
	}{eventAlias(e), citations, e.LowConfidence})
}

// Chunk splits text into pieces of at most size runes. Concatenating the
// result yields text. A non-positive size returns text as one chunk.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var chunks []string
	start, n := 0, 0
	for i := range text {
		if n == size {
			chunks = append(chunks, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(chunks, text[start:])
}
