// Package intent maps free-text queries onto a fixed table of named user
// goals.
package intent

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Action is a recommended next step for an intent.
type Action struct {
	Label       string `json:"label" toml:"label"`
	Description string `json:"description,omitempty" toml:"description"`
	Href        string `json:"href,omitempty" toml:"href"`
}

// Definition is one row of an intent table. Keywords are matched as
// case-insensitive substrings. Patterns are regular expressions that boost
// the keyword score when they match. Slots are regular expressions whose
// named capture groups become Match.Slots.
type Definition struct {
	ID         string   `json:"id" toml:"id"`
	Title      string   `json:"title" toml:"title"`
	Summary    string   `json:"summary" toml:"summary"`
	Keywords   []string `json:"keywords" toml:"keywords"`
	Patterns   []string `json:"patterns,omitempty" toml:"patterns"`
	Actions    []Action `json:"recommendedActions" toml:"actions"`
	TargetPath string   `json:"targetPath,omitempty" toml:"target_path"`
	Slots      []string `json:"slots,omitempty" toml:"slots"`
}

// Target returns the explicit target path or, failing that, the first
// action link.
func (d Definition) Target() string {
	if d.TargetPath != "" {
		return d.TargetPath
	}
	for _, a := range d.Actions {
		if a.Href != "" {
			return a.Href
		}
	}
	return ""
}

// Table is an ordered intent table. Declaration order breaks score ties.
type Table struct {
	// Default names the intent the weighted strategy falls back to. Empty
	// means the first intent.
	Default string `toml:"default"`
	// FallbackPath is where an unknown match points.
	FallbackPath string       `toml:"fallback_path"`
	Intents      []Definition `toml:"intent"`
}

// Validate checks ids are present and unique.
func (t Table) Validate() error {
	if len(t.Intents) == 0 {
		return fmt.Errorf("intent table has no intents")
	}
	seen := make(map[string]bool, len(t.Intents))
	for i, d := range t.Intents {
		if d.ID == "" {
			return fmt.Errorf("intent %d has no id", i)
		}
		if d.ID == UnknownID {
			return fmt.Errorf("intent id %q is reserved", UnknownID)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate intent id %q", d.ID)
		}
		seen[d.ID] = true
	}
	if t.Default != "" && !seen[t.Default] {
		return fmt.Errorf("default intent %q is not defined", t.Default)
	}
	return nil
}

func (t Table) defaultDefinition() Definition {
	for _, d := range t.Intents {
		if d.ID == t.Default {
			return d
		}
	}
	return t.Intents[0]
}

// LoadTable reads an intent table from a TOML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading intent table %s: %w", path, err)
	}
	var t Table
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("parsing intent table %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("intent table %s: %w", path, err)
	}
	return t, nil
}

// DefaultTable returns the service-routing intents.
func DefaultTable() Table {
	return Table{
		Default:      "renewal",
		FallbackPath: DefaultFallbackPath,
		Intents: []Definition{
			{
				ID:       "renewal",
				Title:    "Renew a License",
				Summary:  "Guided help for renewing licenses, permits and registrations.",
				Keywords: []string{"renew", "renewal", "license", "permit"},
				Patterns: []string{`\brenew\w*\b.*\b(registration|license|permit|tag|plate)s?\b`},
				Actions: []Action{
					{Label: "Start renewal checklist", Description: "Step-by-step requirements before you renew.", Href: "/#renewal-checklist"},
					{Label: "Review renewal documents", Description: "Verify forms and supporting documents.", Href: "/documents?focus=renewal"},
				},
				Slots: []string{
					`(?P<vehicle>vehicle|car|truck|boat|motorcycle)`,
					`(?P<document>registration|license|permit)`,
				},
			},
			{
				ID:       "tax",
				Title:    "Report and Pay Taxes",
				Summary:  "Links to state revenue portals with context.",
				Keywords: []string{"tax", "payment", "report", "sales"},
				Patterns: []string{`\b(pay|file|owe)\w*\b.*\btax(es)?\b`},
				Actions: []Action{
					{Label: "View tax calendar", Description: "Stay current on reporting deadlines.", Href: "/services?focus=tax"},
					{Label: "Launch tax payment portal", Description: "Confirm requirements before redirecting.", Href: "/portals/myeasygov"},
				},
				Slots: []string{`(?P<taxType>sales|property|tourist|business) tax`},
			},
			{
				ID:       "title-transfer",
				Title:    "Transfer a Title",
				Summary:  "Understand documentation for transferring ownership.",
				Keywords: []string{"transfer", "title", "ownership", "buy", "sell"},
				Patterns: []string{`\b(sell|sold|bought|buying|selling)\b.*\b(car|vehicle|truck|boat|motorcycle)\b`},
				Actions: []Action{
					{Label: "Checklist for transfers", Description: "Confirm forms and inspections.", Href: "/#transfer-checklist"},
					{Label: "Document helper", Description: "Upload paperwork for extraction and validation.", Href: "/documents?focus=transfer"},
				},
				Slots: []string{`(?P<vehicle>vehicle|car|truck|boat|motorcycle)`},
			},
			{
				ID:       "new-business",
				Title:    "Launch a New Business",
				Summary:  "File applications, zoning and training requirements.",
				Keywords: []string{"new", "business", "apply", "application", "start"},
				Patterns: []string{`\b(open|start|launch)\w*\b.*\b(business|shop|store|restaurant)\b`},
				Actions: []Action{
					{Label: "Smart startup checklist", Description: "Plan licensing, fingerprinting and inspections.", Href: "/#new-business-checklist"},
					{Label: "Required documents", Description: "See what to prepare before applying.", Href: "/documents?focus=new-business"},
				},
				Slots: []string{`(?P<businessType>restaurant|bar|store|shop|salon|food truck)`},
			},
		},
	}
}

func actions(labels ...string) []Action {
	out := make([]Action, len(labels))
	for i, l := range labels {
		out[i] = Action{Label: l}
	}
	return out
}

// GuidanceTable returns the assistant guidance intents used by the
// weighted strategy.
func GuidanceTable() Table {
	return Table{
		Default:      "assistant",
		FallbackPath: DefaultFallbackPath,
		Intents: []Definition{
			{
				ID:       "assistant",
				Title:    "Assistant guidance",
				Keywords: []string{"assistant", "chat", "conversation", "help", "ai"},
				Summary:  "Route the user into the conversational assistant with relevant context chips.",
				Actions:  actions("Open the assistant panel", "Surface the latest prompt"),
			},
			{
				ID:       "portal",
				Title:    "Portal integration",
				Keywords: []string{"portal", "iframe", "external", "vendor", "integration"},
				Summary:  "Launch an embedded or linked external portal with hardened wrappers.",
				Actions:  actions("Show the portal launcher", "Display latency and SLA badges"),
			},
			{
				ID:       "compliance",
				Title:    "Compliance automation",
				Keywords: []string{"compliance", "privacy", "risk", "audit", "governance"},
				Summary:  "Highlight privacy modules, risk matrices and mitigation plans.",
				Actions:  actions("Generate a compliance brief", "Link to smart checklists"),
			},
			{
				ID:       "analytics",
				Title:    "Analytics instrumentation",
				Keywords: []string{"analytics", "metrics", "events", "tracking", "data"},
				Summary:  "Provide analytics hooks, readiness status and observability dashboards.",
				Actions:  actions("Emit analytics events", "Expose readiness checklist"),
			},
			{
				ID:       "locations",
				Title:    "Location intelligence",
				Keywords: []string{"location", "office", "timezone", "address", "map"},
				Summary:  "Share relevant office locations, availability and scheduling hooks.",
				Actions:  actions("Surface nearby office", "Offer booking link"),
			},
			{
				ID:       "checklist",
				Title:    "Operational checklist",
				Keywords: []string{"checklist", "task", "workflow", "playbook", "launch"},
				Summary:  "Summon smart checklists tailored to the current workflow.",
				Actions:  actions("Render the smart checklist", "Auto-complete dependent steps"),
			},
			{
				ID:       "content",
				Title:    "Content documentation",
				Keywords: []string{"documentation", "prompt", "mdx", "guide", "playbook"},
				Summary:  "Serve knowledge or prompt documentation to the user.",
				Actions:  actions("Link to prompt documentation", "Embed content excerpt"),
			},
			{
				ID:       "governance",
				Title:    "Governance insights",
				Keywords: []string{"policy", "guardrail", "governance", "control", "stewardship"},
				Summary:  "Return governance guardrails and stewardship roles.",
				Actions:  actions("Summarize policy owners", "List guardrail status"),
			},
			{
				ID:       "delivery",
				Title:    "Delivery enablement",
				Keywords: []string{"delivery", "project", "roadmap", "milestone", "deployment"},
				Summary:  "Outline delivery playbooks and portal entry points for project teams.",
				Actions:  actions("Expose deployment checklist", "Link to delivery portal"),
			},
			{
				ID:       "insights",
				Title:    "Insights and reporting",
				Keywords: []string{"insight", "report", "dashboard", "visibility", "trend"},
				Summary:  "Surface analytics dashboards, KPIs and reporting actions.",
				Actions:  actions("Launch reporting portal", "Push analytics digest"),
			},
		},
	}
}
