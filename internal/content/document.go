// Package content loads the markdown knowledge base that grounds assistant
// answers.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoContent is returned when the content directory does not exist.
var ErrNoContent = errors.New("no content available")

// Type is a content collection.
type Type string

const (
	TypeServices  Type = "services"
	TypeFAQs      Type = "faqs"
	TypeDocuments Type = "documents"
	TypeFees      Type = "fees"
)

// Types lists the built-in collections in load order.
var Types = []Type{TypeServices, TypeFAQs, TypeDocuments, TypeFees}

// Document is one knowledge-base entry. ID is "type:slug" and addresses
// exactly one document.
type Document struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Order       int      `json:"order"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Body        string   `json:"body"`
}

// EmbeddingText is the text a document is indexed by.
func (d Document) EmbeddingText() string {
	return d.Title + " " + d.Summary + " " + d.Body
}

// frontmatter mirrors the YAML header of a content file.
type frontmatter struct {
	Title       string   `yaml:"title"`
	Slug        string   `yaml:"slug"`
	Summary     string   `yaml:"summary"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
	Order       int      `yaml:"order"`
	LastUpdated string   `yaml:"lastUpdated"`
}

// DocumentID builds the stable id for a document.
func DocumentID(typ Type, slug string) string {
	return string(typ) + ":" + slug
}

// Parse builds a Document from a content file. The slug defaults to the
// file name without extension and the title defaults to the slug.
func Parse(typ Type, fileName string, raw []byte) (Document, error) {
	header, body, err := splitFrontmatter(raw)
	if err != nil {
		return Document{}, fmt.Errorf("parsing %s: %w", fileName, err)
	}

	var fm frontmatter
	if len(header) > 0 {
		if err := yaml.Unmarshal(header, &fm); err != nil {
			return Document{}, fmt.Errorf("parsing frontmatter of %s: %w", fileName, err)
		}
	}

	slug := fm.Slug
	if slug == "" {
		base := path.Base(fileName)
		slug = strings.TrimSuffix(base, path.Ext(base))
	}
	title := fm.Title
	if title == "" {
		title = slug
	}

	return Document{
		ID:          DocumentID(typ, slug),
		Type:        typ,
		Slug:        slug,
		Title:       title,
		Summary:     fm.Summary,
		Category:    fm.Category,
		Tags:        fm.Tags,
		Order:       fm.Order,
		LastUpdated: fm.LastUpdated,
		Body:        strings.TrimSpace(string(body)),
	}, nil
}

var fence = []byte("---")

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body. Files without one are all body.
func splitFrontmatter(raw []byte) (header, body []byte, err error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if !bytes.HasPrefix(trimmed, fence) {
		return nil, raw, nil
	}

	rest := trimmed[len(fence):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, raw, nil
	}
	rest = rest[nl+1:]

	for offset := 0; offset <= len(rest); {
		end := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		if end < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+end]
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fence) {
			header = rest[:offset]
			if end < 0 {
				return header, nil, nil
			}
			return header, rest[offset+end+1:], nil
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return nil, nil, errors.New("unterminated frontmatter")
}
