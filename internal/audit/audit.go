// Package audit keeps the compliance record of assistant exchanges. Every
// record is redacted before it is written and the write is durable: a
// failed insert is returned to the caller rather than dropped.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ziadkadry99/assistd/internal/confidence"
)

// Segment is one part of a rich message. Only Text is redacted; Data is
// stored as given.
type Segment struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Message is one conversation turn. Content holds plain text; Segments
// holds rich content and takes precedence when set.
type Message struct {
	Role     string         `json:"role"`
	Content  string         `json:"-"`
	Segments []Segment      `json:"-"`
	Name     string         `json:"name,omitempty"`
	ID       string         `json:"id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text returns the plain text of the message, joining segment texts with
// a space.
func (m Message) Text() string {
	if m.Segments == nil {
		return m.Content
	}
	var b bytes.Buffer
	for _, s := range m.Segments {
		if s.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

type messageAlias Message

type messageJSON struct {
	messageAlias
	Content json.RawMessage `json:"content"`
}

// MarshalJSON writes content as a string, or as a segment array for rich
// messages.
func (m Message) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if m.Segments != nil {
		content, err = json.Marshal(m.Segments)
	} else {
		content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{messageAlias: messageAlias(m), Content: content})
}

// UnmarshalJSON accepts content as a string or a segment array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.messageAlias)

	content := bytes.TrimSpace(raw.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '"':
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return err
		}
	case content[0] == '[':
		if err := json.Unmarshal(content, &m.Segments); err != nil {
			return err
		}
		if m.Segments == nil {
			m.Segments = []Segment{}
		}
	default:
		return fmt.Errorf("message content must be a string or an array of segments")
	}
	return nil
}

// ToolInvocation records one tool call made while answering.
type ToolInvocation struct {
	Name       string `json:"name"`
	Arguments  any    `json:"arguments,omitempty"`
	Result     any    `json:"result,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
}

// Record is one persisted exchange. Records are append-only.
type Record struct {
	ID                string             `json:"id"`
	Route             string             `json:"route"`
	UserContext       map[string]any     `json:"userContext"`
	Messages          []Message          `json:"messages"`
	Response          string             `json:"response"`
	Tools             []ToolInvocation   `json:"tools"`
	PIIRedactions     int                `json:"piiRedactions"`
	Confidence        float64            `json:"confidence"`
	ConfidenceSummary confidence.Summary `json:"confidenceSummary"`
	CreatedAt         time.Time          `json:"createdAt"`
}
