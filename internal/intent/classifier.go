package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// UnknownID is the sentinel intent for queries below the threshold.
	UnknownID = "unknown"

	DefaultThreshold    = 0.5
	DefaultPatternBoost = 0.25
	DefaultContentBoost = 0.1
	DefaultFallbackPath = "/services"
)

// Strategy names a classification algorithm.
type Strategy string

const (
	StrategyKeyword  Strategy = "keyword"
	StrategyWeighted Strategy = "weighted"
)

// Match is the classification of one query.
type Match struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Summary            string            `json:"summary"`
	Confidence         float64           `json:"confidence"`
	RecommendedActions []Action          `json:"recommendedActions"`
	Slots              map[string]string `json:"slots"`
	TargetPath         string            `json:"targetPath,omitempty"`
	PromptSlug         string            `json:"promptSlug,omitempty"`
}

// Known reports whether the match is a configured intent.
func (m Match) Known() bool { return m.ID != UnknownID }

// Classifier maps a query onto an intent. Implementations are
// deterministic and safe for concurrent use.
type Classifier interface {
	// Classify returns the single best match.
	Classify(query string) Match
	// MatchAll returns every intent ranked by descending score.
	MatchAll(query string) []Match
	// Strategy names the algorithm.
	Strategy() Strategy
}

// Options tune a classifier. Zero values select the defaults.
type Options struct {
	Threshold    float64
	PatternBoost float64
	ContentBoost float64
	// Content is consulted by the weighted strategy for its boost and for
	// the prompt slug.
	Content []ContentRef
}

// New builds a classifier for the named strategy.
func New(strategy Strategy, table Table, opts Options) (Classifier, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	compiled, err := compile(table)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case StrategyKeyword, "":
		return newKeywordThreshold(table, compiled, opts), nil
	case StrategyWeighted:
		return newWeighted(table, compiled, opts), nil
	default:
		return nil, fmt.Errorf("unknown intent strategy %q", strategy)
	}
}

type compiledIntent struct {
	def      Definition
	keywords []string
	patterns []*regexp.Regexp
	slots    []*regexp.Regexp
}

func compile(table Table) ([]compiledIntent, error) {
	out := make([]compiledIntent, len(table.Intents))
	for i, d := range table.Intents {
		ci := compiledIntent{def: d}
		for _, k := range d.Keywords {
			ci.keywords = append(ci.keywords, strings.ToLower(k))
		}
		for _, p := range d.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("intent %s: pattern %q: %w", d.ID, p, err)
			}
			ci.patterns = append(ci.patterns, re)
		}
		for _, s := range d.Slots {
			re, err := regexp.Compile("(?i)" + s)
			if err != nil {
				return nil, fmt.Errorf("intent %s: slot %q: %w", d.ID, s, err)
			}
			ci.slots = append(ci.slots, re)
		}
		out[i] = ci
	}
	return out, nil
}

// keywordRatio is matched keyword phrases over total phrases.
func (ci compiledIntent) keywordRatio(normalized string) float64 {
	if len(ci.keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range ci.keywords {
		if k != "" && strings.Contains(normalized, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(ci.keywords))
}

func (ci compiledIntent) patternMatched(query string) bool {
	for _, re := range ci.patterns {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// extractSlots fills named capture groups. The first pattern to bind a
// name wins.
func (ci compiledIntent) extractSlots(query string) map[string]string {
	slots := map[string]string{}
	for _, re := range ci.slots {
		m := re.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		for i, name := range re.SubexpNames() {
			if name == "" || m[i] == "" {
				continue
			}
			if _, ok := slots[name]; !ok {
				slots[name] = strings.ToLower(m[i])
			}
		}
	}
	return slots
}

func (ci compiledIntent) match(query string, score float64) Match {
	return Match{
		ID:                 ci.def.ID,
		Title:              ci.def.Title,
		Summary:            ci.def.Summary,
		Confidence:         clamp(score),
		RecommendedActions: ci.def.Actions,
		Slots:              ci.extractSlots(query),
		TargetPath:         ci.def.Target(),
	}
}

type scored struct {
	intent compiledIntent
	score  float64
}

// rank stable-sorts descending so declaration order breaks ties.
func rank(items []scored) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
