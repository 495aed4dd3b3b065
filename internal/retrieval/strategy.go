package retrieval

type Strategy string

const (
	StrategyNoResults     Strategy = "no_results"
	StrategyPerfectMatch  Strategy = "perfect_match"
	StrategyHighRelevance Strategy = "high_relevance"
	StrategyLowRelevance  Strategy = "low_relevance"
)

type Thresholds struct {
	Perfect float64
	Answer  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Perfect: 0.98, Answer: 0.8}
}

// Decision carries the strategy and the sources that cleared each threshold.
type Decision struct {
	Strategy  Strategy `json:"strategy"`
	TopAnswer []Source `json:"topAnswer"`
	Perfect   []Source `json:"perfect"`
}

func SelectStrategy(bundle *Bundle, thresholds Thresholds) Decision {
	if bundle == nil || len(bundle.Sources) == 0 {
		return Decision{Strategy: StrategyNoResults, TopAnswer: []Source{}, Perfect: []Source{}}
	}

	topAnswer := []Source{}
	perfect := []Source{}
	for _, source := range bundle.Sources {
		if source.RelevanceScore >= thresholds.Answer {
			topAnswer = append(topAnswer, source)
		}
		if source.RelevanceScore >= thresholds.Perfect {
			perfect = append(perfect, source)
		}
	}

	switch {
	case len(perfect) > 0:
		return Decision{Strategy: StrategyPerfectMatch, TopAnswer: topAnswer, Perfect: perfect}
	case len(topAnswer) > 0:
		return Decision{Strategy: StrategyHighRelevance, TopAnswer: topAnswer, Perfect: []Source{}}
	default:
		return Decision{Strategy: StrategyLowRelevance, TopAnswer: []Source{}, Perfect: []Source{}}
	}
}
