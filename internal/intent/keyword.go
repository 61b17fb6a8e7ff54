package intent

// KeywordThreshold scores each intent by its keyword ratio plus a fixed
// boost when one of its patterns matches. A best score under Threshold
// yields the unknown intent pointing at the fallback path.
type KeywordThreshold struct {
	intents      []compiledIntent
	threshold    float64
	patternBoost float64
	fallbackPath string
}

func newKeywordThreshold(table Table, compiled []compiledIntent, opts Options) *KeywordThreshold {
	k := &KeywordThreshold{
		intents:      compiled,
		threshold:    opts.Threshold,
		patternBoost: opts.PatternBoost,
		fallbackPath: table.FallbackPath,
	}
	if k.threshold <= 0 {
		k.threshold = DefaultThreshold
	}
	if k.patternBoost <= 0 {
		k.patternBoost = DefaultPatternBoost
	}
	if k.fallbackPath == "" {
		k.fallbackPath = DefaultFallbackPath
	}
	return k
}

func (k *KeywordThreshold) Strategy() Strategy { return StrategyKeyword }

// Threshold returns the minimum score for a known intent.
func (k *KeywordThreshold) Threshold() float64 { return k.threshold }

func (k *KeywordThreshold) score(query string) []scored {
	normalized := normalize(query)
	items := make([]scored, len(k.intents))
	for i, ci := range k.intents {
		s := ci.keywordRatio(normalized)
		if normalized != "" && ci.patternMatched(normalized) {
			s += k.patternBoost
		}
		items[i] = scored{intent: ci, score: clamp(s)}
	}
	rank(items)
	return items
}

func (k *KeywordThreshold) Classify(query string) Match {
	items := k.score(query)
	best := items[0]
	if best.score < k.threshold {
		return k.unknown(best.score)
	}
	return best.intent.match(query, best.score)
}

// MatchAll returns the intents with a positive score.
func (k *KeywordThreshold) MatchAll(query string) []Match {
	var out []Match
	for _, it := range k.score(query) {
		if it.score <= 0 {
			break
		}
		out = append(out, it.intent.match(query, it.score))
	}
	return out
}

func (k *KeywordThreshold) unknown(score float64) Match {
	return Match{
		ID:         UnknownID,
		Title:      "Unknown",
		Summary:    "We couldn't find an exact match. Explore the service directory for more options.",
		Confidence: clamp(score),
		RecommendedActions: []Action{
			{Label: "Browse all services", Href: k.fallbackPath},
		},
		Slots:      map[string]string{},
		TargetPath: k.fallbackPath,
	}
}
