// Package guardrail rejects oversized or disallowed user input before any
// retrieval or generation happens.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the longest accepted message, in characters.
const DefaultMaxLength = 1000

// Category groups blocked terms by how a rejection may be reported.
type Category string

const (
	CategoryAbuse    Category = "abuse"
	CategoryViolence Category = "violence"
	CategorySelfHarm Category = "self_harm"
	CategoryLength   Category = "length"
)

// Rejection reasons shown to users.
const (
	ReasonTooLong  = "The request is too long. Please shorten your question."
	ReasonSelfHarm = "We can't help with that here. If you are in crisis, please contact local emergency services right away."
	ReasonUnsafe   = "The request includes language we cannot assist with."
)

// Term is one blocklist entry.
type Term struct {
	Phrase   string
	Category Category
}

// DefaultBlocklist is the blocklist applied when none is configured.
var DefaultBlocklist = []Term{
	{Phrase: "fraud", Category: CategoryAbuse},
	{Phrase: "hack", Category: CategoryAbuse},
	{Phrase: "exploit", Category: CategoryAbuse},
	{Phrase: "weapon", Category: CategoryViolence},
	{Phrase: "bomb", Category: CategoryViolence},
	{Phrase: "suicide", Category: CategorySelfHarm},
	{Phrase: "kill myself", Category: CategorySelfHarm},
	{Phrase: "self-harm", Category: CategorySelfHarm},
}

// Result is the outcome of Evaluate. Term is set for blocklist hits and is
// meant for internal logging only; Reason is safe to show the user.
type Result struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Category Category `json:"category,omitempty"`
	Term     string   `json:"-"`
}

// Filter evaluates messages against a length cap and a blocklist.
type Filter struct {
	maxLength int
	terms     []Term
}

// New creates a Filter. A non-positive maxLength uses DefaultMaxLength and a
// nil blocklist uses DefaultBlocklist.
func New(maxLength int, blocklist []Term) *Filter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if blocklist == nil {
		blocklist = DefaultBlocklist
	}
	terms := make([]Term, 0, len(blocklist))
	for _, t := range blocklist {
		phrase := strings.ToLower(strings.TrimSpace(t.Phrase))
		if phrase == "" {
			continue
		}
		terms = append(terms, Term{Phrase: phrase, Category: t.Category})
	}
	return &Filter{maxLength: maxLength, terms: terms}
}

// Evaluate applies the length rule then the blocklist; the first failure wins.
// Blocklist matching is a case-insensitive substring test, so "hack" also
// matches "hacker" and "HackTheSystem".
func (f *Filter) Evaluate(message string) Result {
	if utf8.RuneCountInString(message) > f.maxLength {
		return Result{Allowed: false, Reason: ReasonTooLong, Category: CategoryLength}
	}

	lower := strings.ToLower(message)
	for _, t := range f.terms {
		if !strings.Contains(lower, t.Phrase) {
			continue
		}
		return Result{
			Allowed:  false,
			Reason:   reasonFor(t),
			Category: t.Category,
			Term:     t.Phrase,
		}
	}
	return Result{Allowed: true}
}

// reasonFor echoes the matched term only for categories where repeating it
// back is harmless.
func reasonFor(t Term) string {
	switch t.Category {
	case CategorySelfHarm:
		return ReasonSelfHarm
	case CategoryViolence:
		return ReasonUnsafe
	default:
		return fmt.Sprintf("The request cannot include the term %q.", t.Phrase)
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeWhitespace collapses whitespace runs to one space and trims.
func SanitizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
