package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Emitter delivers one event. An error means the consumer is gone and no
// further events should be sent.
type Emitter interface {
	Emit(Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(e Event) error { return f(e) }

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// SSEWriter frames events as server-sent events: "data: {json}\n\n".
type SSEWriter struct {
	w io.Writer
}

// NewSSEWriter sets the event-stream headers on w and returns a writer.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &SSEWriter{w: w}
}

// Emit implements Emitter.
func (s *SSEWriter) Emit(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	flush(s.w)
	return nil
}

// NDJSONWriter frames events as newline-delimited JSON.
type NDJSONWriter struct {
	w io.Writer
}

// NewNDJSONWriter sets the NDJSON headers on w and returns a writer.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	h := w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return &NDJSONWriter{w: w}
}

// Emit implements Emitter.
func (n *NDJSONWriter) Emit(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	data = append(data, '\n')
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	flush(n.w)
	return nil
}

// TextWriter renders events for a terminal: tokens verbatim, then a
// numbered source list.
type TextWriter struct {
	w io.Writer
}

// NewTextWriter returns a TextWriter on w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// Emit implements Emitter.
func (t *TextWriter) Emit(e Event) error {
	var err error
	switch e.Type {
	case TypeToken:
		_, err = io.WriteString(t.w, e.Value)
	case TypeTool:
		_, err = fmt.Fprintf(t.w, "[tool %s]\n", e.Tool.Name)
	case TypeComplete:
		var b strings.Builder
		b.WriteString("\n")
		if len(e.Citations) > 0 {
			b.WriteString("\nSources:\n")
			for i, c := range e.Citations {
				fmt.Fprintf(&b, "  %d. %s", i+1, c.Title)
				if c.URL != "" {
					fmt.Fprintf(&b, " (%s)", c.URL)
				}
				b.WriteString("\n")
			}
		}
		if e.LowConfidence {
			b.WriteString("\n(low confidence)\n")
		}
		_, err = io.WriteString(t.w, b.String())
	case TypeError:
		_, err = fmt.Fprintf(t.w, "\nerror: %s\n", e.Message)
	}
	return err
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	Events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Text concatenates the recorded token values.
func (r *Recorder) Text() string {
	var b strings.Builder
	for _, e := range r.Events {
		if e.Type == TypeToken {
			b.WriteString(e.Value)
		}
	}
	return b.String()
}

// Last returns the final recorded event.
func (r *Recorder) Last() Event {
	if len(r.Events) == 0 {
		return Event{}
	}
	return r.Events[len(r.Events)-1]
}
