package assistant

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/tools"
)

// Session flags derived from what the user asks about.
const (
	FlagMembership = "interest:membership"
	FlagVolunteer  = "interest:volunteer"
	FlagEvent      = "interest:event"
)

var flagTriggers = []struct {
	flag  string
	terms []string
}{
	{FlagMembership, []string{"join", "membership"}},
	{FlagVolunteer, []string{"volunteer"}},
	{FlagEvent, []string{"event"}},
}

// DeriveFlags returns the session flags implied by msg.
func DeriveFlags(msg string) []string {
	lower := strings.ToLower(msg)
	var flags []string
	for _, t := range flagTriggers {
		if containsAny(lower, t.terms...) {
			flags = append(flags, t.flag)
		}
	}
	return flags
}

func mergeFlags(existing, derived []string) []string {
	out := make([]string, 0, len(existing)+len(derived))
	for _, f := range append(slices.Clone(existing), derived...) {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// membershipGuide is cited whenever a fee estimate is shown.
var membershipGuide = stream.Citation{
	Slug:    "membership",
	Title:   "Membership Guide",
	Summary: "Dues, scholarships and what membership includes.",
	URL:     "/membership",
}

// planTools picks the helper calls a message warrants.
func planTools(query string, flags []string, contactURL string) []tools.Call {
	lower := strings.ToLower(query)
	var calls []tools.Call

	if containsAny(lower, "fee", "cost", "price") {
		calls = append(calls, tools.Call{
			Name: "calc.fees",
			Args: map[string]any{
				"type":   "membership",
				"params": map[string]any{"duration": 12},
			},
		})
	}
	if containsAny(lower, "program", "grant", "resource") || slices.Contains(flags, FlagEvent) {
		calls = append(calls, tools.Call{
			Name: "content.search",
			Args: map[string]any{"q": query},
		})
	}
	if containsAny(lower, "contact", "call", "talk") {
		calls = append(calls, tools.Call{
			Name: "link.out",
			Args: map[string]any{"url": contactURL, "label": "Connect with our team"},
		})
	}
	return calls
}

func (s *Service) runTools(ctx context.Context, query string, flags []string) []tools.Invocation {
	calls := planTools(query, flags, s.opts.ContactURL)
	out := make([]tools.Invocation, 0, len(calls))
	for _, call := range calls {
		inv := s.tools.Invoke(ctx, call)
		if !inv.Success {
			s.logger.Warnw("tool call failed", "tool", inv.Name, "error", inv.Error)
		}
		out = append(out, inv)
	}
	return out
}

func toolCitations(invocations []tools.Invocation) []stream.Citation {
	var out []stream.Citation
	for _, inv := range invocations {
		if !inv.Success {
			continue
		}
		switch r := inv.Result.(type) {
		case tools.FeeEstimate:
			out = append(out, membershipGuide)
		case tools.SearchResult:
			out = append(out, r.Matches...)
		}
	}
	return out
}

// compose joins the optional greeting, the generated answer and one line
// per successful tool.
func compose(req Request, answer string, invocations []tools.Invocation) string {
	var parts []string
	if req.Greet {
		parts = append(parts, greeting(req.Context))
	}
	if a := strings.TrimSpace(answer); a != "" {
		parts = append(parts, a)
	}
	for _, inv := range invocations {
		if !inv.Success {
			continue
		}
		switch r := inv.Result.(type) {
		case tools.FeeEstimate:
			parts = append(parts, fmt.Sprintf("%s: about $%.0f %s per year.", r.Description, r.Estimate, r.Currency))
		case tools.SearchResult:
			if len(r.Matches) == 0 {
				continue
			}
			titles := make([]string, len(r.Matches))
			for i, m := range r.Matches {
				titles[i] = m.Title
			}
			parts = append(parts, "Related pages: "+strings.Join(titles, ", ")+".")
		case tools.Link:
			parts = append(parts, fmt.Sprintf("If you'd like to speak with someone directly, use the %q link.", r.Label))
		}
	}
	return strings.Join(parts, "\n\n")
}

func greeting(c UserContext) string {
	var b strings.Builder
	b.WriteString("Thanks for reaching out")
	if c.Route != "" {
		b.WriteString(" while browsing ")
		b.WriteString(c.Route)
	}
	b.WriteString(". I'm here to help.")
	if slices.Contains(c.SessionFlags, FlagMembership) {
		b.WriteString(" It sounds like you're exploring membership.")
	}
	if slices.Contains(c.SessionFlags, FlagVolunteer) {
		b.WriteString(" Volunteering is a great way to get involved.")
	}
	if slices.Contains(c.SessionFlags, FlagEvent) {
		b.WriteString(" I can point you to upcoming events too.")
	}
	return b.String()
}
