package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns match the built-in collections.
var DefaultPatterns = []string{
	"services/**/*.{md,mdx}",
	"faqs/**/*.{md,mdx}",
	"documents/**/*.{md,mdx}",
	"fees/**/*.{md,mdx}",
}

// Load reads every file under dir matching patterns. A file's collection is
// its first path segment. When two files resolve to the same id the later
// one replaces the earlier. The result is sorted by order, then title.
func Load(dir string, patterns []string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoContent, dir)
		}
		return nil, fmt.Errorf("accessing content dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content path %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir), patterns)
}

// LoadFS is Load over an fs.FS.
func LoadFS(fsys fs.FS, patterns []string) ([]Document, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	files, err := matchFiles(fsys, patterns)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(files))
	var docs []Document
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		typ, _, _ := strings.Cut(name, "/")
		doc, err := Parse(Type(typ), name, raw)
		if err != nil {
			return nil, err
		}
		if i, ok := byID[doc.ID]; ok {
			docs[i] = doc
			continue
		}
		byID[doc.ID] = len(docs)
		docs = append(docs, doc)
	}

	SortDocuments(docs)
	return docs, nil
}

// SortDocuments orders by Order, then case-insensitive title.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Order != docs[j].Order {
			return docs[i].Order < docs[j].Order
		}
		return strings.ToLower(docs[i].Title) < strings.ToLower(docs[j].Title)
	})
}

// matchFiles expands patterns into a sorted, de-duplicated file list.
func matchFiles(fsys fs.FS, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid content pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", pattern, err)
		}
		for _, m := range matches {
			m = path.Clean(m)
			if seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Match reports whether rel (slash separated, relative to the content
// dir) is selected by any pattern.
func Match(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
