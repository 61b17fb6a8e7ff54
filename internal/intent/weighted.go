package intent

import (
	"sort"
	"strings"

	"github.com/ziadkadry99/assistd/internal/content"
)

// ContentRef is the part of a content entry the weighted strategy
// compares queries against.
type ContentRef struct {
	Slug     string
	Title    string
	Summary  string
	Category string
	Order    int
}

// ContentRefs projects documents onto ContentRefs.
func ContentRefs(docs []content.Document) []ContentRef {
	refs := make([]ContentRef, len(docs))
	for i, d := range docs {
		refs[i] = ContentRef{Slug: d.Slug, Title: d.Title, Summary: d.Summary, Category: d.Category, Order: d.Order}
	}
	return refs
}

type contentTerms struct {
	rawSlug                        string
	slug, title, summary, category string
}

// WeightedWithContentBoost scores each intent by its keyword ratio plus a
// flat boost when the query mentions any known content entry. A zero best
// score falls back to the table's default intent with confidence 0.
type WeightedWithContentBoost struct {
	intents  []compiledIntent
	fallback compiledIntent
	boost    float64
	content  []contentTerms // ordered by ContentRef.Order
}

func newWeighted(table Table, compiled []compiledIntent, opts Options) *WeightedWithContentBoost {
	w := &WeightedWithContentBoost{
		intents: compiled,
		boost:   opts.ContentBoost,
	}
	if w.boost <= 0 {
		w.boost = DefaultContentBoost
	}
	def := table.defaultDefinition()
	for _, ci := range compiled {
		if ci.def.ID == def.ID {
			w.fallback = ci
		}
	}

	refs := append([]ContentRef(nil), opts.Content...)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Order < refs[j].Order })
	for _, r := range refs {
		w.content = append(w.content, contentTerms{
			rawSlug:  r.Slug,
			slug:     strings.ToLower(strings.ReplaceAll(r.Slug, "-", " ")),
			title:    strings.ToLower(r.Title),
			summary:  strings.ToLower(r.Summary),
			category: strings.ToLower(r.Category),
		})
	}
	return w
}

func (w *WeightedWithContentBoost) Strategy() Strategy { return StrategyWeighted }

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}

func (w *WeightedWithContentBoost) contentBoost(normalized string) float64 {
	for _, c := range w.content {
		if contains(normalized, c.slug) || contains(normalized, c.title) || contains(normalized, c.summary) {
			return w.boost
		}
	}
	return 0
}

// promptSlug returns the slug of the first content entry whose slug,
// title or category appears in the query.
func (w *WeightedWithContentBoost) promptSlug(normalized string) string {
	for _, c := range w.content {
		if contains(normalized, c.slug) || contains(normalized, c.title) || contains(normalized, c.category) {
			return c.rawSlug
		}
	}
	return ""
}

func (w *WeightedWithContentBoost) score(normalized string) []scored {
	boost := w.contentBoost(normalized)
	items := make([]scored, len(w.intents))
	for i, ci := range w.intents {
		items[i] = scored{intent: ci, score: ci.keywordRatio(normalized) + boost}
	}
	rank(items)
	return items
}

func (w *WeightedWithContentBoost) Classify(query string) Match {
	normalized := normalize(query)
	if normalized == "" {
		return Match{
			ID:                 w.fallback.def.ID,
			Title:              w.fallback.def.Title,
			Summary:            "Invite the user to ask a question or pick a recommended workflow.",
			Confidence:         0,
			RecommendedActions: []Action{{Label: "Prompt for next question"}},
			Slots:              map[string]string{},
		}
	}

	best := w.score(normalized)[0]
	winner := best.intent
	if best.score <= 0 {
		winner = w.fallback
	}
	m := winner.match(query, best.score)
	m.PromptSlug = w.promptSlug(normalized)
	return m
}

func (w *WeightedWithContentBoost) MatchAll(query string) []Match {
	normalized := normalize(query)
	if normalized == "" {
		return nil
	}
	slug := w.promptSlug(normalized)
	items := w.score(normalized)
	out := make([]Match, len(items))
	for i, it := range items {
		out[i] = it.intent.match(query, it.score)
		out[i].PromptSlug = slug
	}
	return out
}
