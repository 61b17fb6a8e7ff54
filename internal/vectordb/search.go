package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (score: %.4f) ---\n", i+1, r.Score))
		sb.WriteString(fmt.Sprintf("ID: %s\n", r.ID))
		sb.WriteString(fmt.Sprintf("Title: %s\n", r.Title))
		if r.Category != "" {
			sb.WriteString(fmt.Sprintf("Category: %s\n", r.Category))
		}
		if r.Summary != "" {
			sb.WriteString("\n")
			sb.WriteString(r.Summary)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
