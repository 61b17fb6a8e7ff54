package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Chunk is one heading-delimited slice of a document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Type       Type   `json:"type"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Heading    string `json:"heading"`
	Content    string `json:"content"`
}

type section struct {
	heading string
	body    string
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// ChunkByHeading splits a document at its top-level headings. Text before
// the first heading is filed under the document title. Sections longer
// than maxChars runes are split on paragraph boundaries; maxChars <= 0
// disables splitting. A document with no textual sections yields a single
// chunk holding the whole body.
func ChunkByHeading(doc Document, maxChars int) ([]Chunk, error) {
	var chunks []Chunk
	add := func(heading, content string) {
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s#%d", doc.ID, len(chunks)),
			DocumentID: doc.ID,
			Type:       doc.Type,
			Slug:       doc.Slug,
			Title:      doc.Title,
			Heading:    heading,
			Content:    content,
		})
	}

	for _, sec := range splitSections(doc.Title, doc.Body) {
		parts, err := splitParagraphs(sec.body, maxChars)
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", doc.ID, err)
		}
		for _, p := range parts {
			add(sec.heading, p)
		}
	}

	if len(chunks) == 0 {
		whole, err := PlainText(doc.Body)
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", doc.ID, err)
		}
		add(doc.Title, whole)
	}
	return chunks, nil
}

// splitSections cuts source at the line starts of top-level headings.
func splitSections(title, body string) []section {
	source := []byte(body)
	root := markdown.Parser().Parse(text.NewReader(source))

	type mark struct {
		start, bodyStart int
		heading          string
	}
	var marks []mark
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		marks = append(marks, mark{
			start:     lineStart(source, seg.Start),
			bodyStart: lineEnd(source, h.Lines().At(h.Lines().Len()-1).Stop),
			heading:   CollapseWhitespace(string(h.Lines().Value(source))),
		})
	}

	var sections []section
	if len(marks) == 0 || marks[0].start > 0 {
		end := len(source)
		if len(marks) > 0 {
			end = marks[0].start
		}
		sections = append(sections, section{heading: title, body: string(source[:end])})
	}

	for i, m := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		start := m.bodyStart
		if start > end {
			start = end
		}
		sections = append(sections, section{heading: m.heading, body: string(source[start:end])})
	}
	return sections
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	return pos
}

// splitParagraphs returns the plain text of body, packed into pieces of at
// most maxChars runes. Empty sections produce nothing.
func splitParagraphs(body string, maxChars int) ([]string, error) {
	whole, err := PlainText(body)
	if err != nil || whole == "" {
		return nil, err
	}
	if maxChars <= 0 || utf8.RuneCountInString(whole) <= maxChars {
		return []string{whole}, nil
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, para := range blankLines.Split(body, -1) {
		p, err := PlainText(para)
		if err != nil {
			return nil, err
		}
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n > maxChars {
			flush()
			out = append(out, hardSplit(p, maxChars)...)
			continue
		}
		if curLen > 0 && curLen+1+n > maxChars {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(p)
		curLen += n
	}
	flush()
	return out, nil
}

func hardSplit(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[:n])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[n:]
	}
	return out
}
