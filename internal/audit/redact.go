package audit

import "regexp"

// Rule replaces every match of Pattern with Placeholder.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Placeholder string
}

// Rules run in order, each as a full pass over the output of the previous
// one. The most specific shapes go first so that an SSN or a card number
// is not claimed by the looser phone rule.
var Rules = []Rule{
	{Name: "ssn", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), Placeholder: "[redacted-ssn]"},
	{Name: "apiKey", Pattern: regexp.MustCompile(`(sk|pk|tok|ghp)_[A-Za-z0-9]{16,}`), Placeholder: "[redacted-secret]"},
	{Name: "url", Pattern: regexp.MustCompile(`(?i)https?://[^\s]+`), Placeholder: "[redacted-url]"},
	{Name: "email", Pattern: regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`), Placeholder: "[redacted-email]"},
	{Name: "creditCard", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`), Placeholder: "[redacted-card]"},
	{Name: "phone", Pattern: regexp.MustCompile(`(?:(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4})`), Placeholder: "[redacted-phone]"},
}

// Breakdown counts redactions per rule name.
type Breakdown map[string]int

func (b Breakdown) merge(other Breakdown) {
	for k, v := range other {
		b[k] += v
	}
}

// Total sums every category.
func (b Breakdown) Total() int {
	n := 0
	for _, v := range b {
		n += v
	}
	return n
}

// TextResult is the outcome of redacting one string.
type TextResult struct {
	Text       string
	Redactions int
	Breakdown  Breakdown
}

// RedactText applies every rule to s.
func RedactText(s string) TextResult {
	breakdown := Breakdown{}
	for _, rule := range Rules {
		matches := rule.Pattern.FindAllStringIndex(s, -1)
		if len(matches) == 0 {
			continue
		}
		breakdown[rule.Name] += len(matches)
		s = rule.Pattern.ReplaceAllLiteralString(s, rule.Placeholder)
	}
	return TextResult{Text: s, Redactions: breakdown.Total(), Breakdown: breakdown}
}

// ConversationResult is the outcome of redacting a transcript.
type ConversationResult struct {
	Messages        []Message
	TotalRedactions int
	Breakdown       Breakdown
}

// RedactConversation redacts each message, and each text segment of rich
// messages, independently. The input is not modified.
func RedactConversation(messages []Message) ConversationResult {
	out := make([]Message, len(messages))
	breakdown := Breakdown{}

	for i, m := range messages {
		redacted := m
		if m.Segments != nil {
			redacted.Segments = make([]Segment, len(m.Segments))
			for j, seg := range m.Segments {
				if seg.Text != "" {
					r := RedactText(seg.Text)
					seg.Text = r.Text
					breakdown.merge(r.Breakdown)
				}
				redacted.Segments[j] = seg
			}
		} else {
			r := RedactText(m.Content)
			redacted.Content = r.Text
			breakdown.merge(r.Breakdown)
		}
		out[i] = redacted
	}

	return ConversationResult{
		Messages:        out,
		TotalRedactions: breakdown.Total(),
		Breakdown:       breakdown,
	}
}
