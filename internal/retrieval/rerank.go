package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	linearDecayStep      = 0.05
	defaultMissingScore  = 0.5
	reasoningNoScore     = "No score provided"
	reasoningNotScored   = "Not scored by reranker"
	reasoningRerankOff   = "Reranking disabled"
	reasoningRerankError = "Reranking unavailable; using search order"
)

type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []SearchCandidate, topN int) ([]RankedCandidate, error)
	// ModelName is empty for rerankers that do not consult a model.
	ModelName() string
}

// LinearDecayReranker keeps search order and assigns 1.0, 0.95, 0.90, ...
type LinearDecayReranker struct{}

func (LinearDecayReranker) Rerank(_ context.Context, _ string, candidates []SearchCandidate, topN int) ([]RankedCandidate, error) {
	return linearDecay(candidates, topN, reasoningRerankOff), nil
}

func (LinearDecayReranker) ModelName() string {
	return ""
}

func linearDecay(candidates []SearchCandidate, topN int, reasoning string) []RankedCandidate {
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	ranked := make([]RankedCandidate, 0, topN)
	for i, candidate := range candidates[:topN] {
		ranked = append(ranked, RankedCandidate{
			SearchCandidate: candidate,
			RelevanceScore:  max(0, 1.0-float64(i)*linearDecayStep),
			Reasoning:       reasoning,
		})
	}
	return ranked
}

type LLMReranker struct {
	responder PromptResponder
	model     string
}

func NewLLMReranker(responder PromptResponder, model string) LLMReranker {
	return LLMReranker{responder: responder, model: strings.TrimSpace(model)}
}

func (r LLMReranker) ModelName() string {
	return r.model
}

func (r LLMReranker) Rerank(ctx context.Context, query string, candidates []SearchCandidate, topN int) ([]RankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if r.responder == nil {
		return nil, errors.New("reranker responder unavailable")
	}

	raw, err := r.responder.Respond(ctx, rerankSystemPrompt, buildRerankPrompt(query, candidates))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	ranked, err := parseRankedResults(raw, candidates)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}

func parseRankedResults(raw string, candidates []SearchCandidate) ([]RankedCandidate, error) {
	block := extractJSONBlock(raw)
	if block == "" || !gjson.Valid(block) {
		return nil, errors.New("reranker response did not include json")
	}
	items := gjson.Get(block, "ranked_results")
	if !items.IsArray() {
		return nil, errors.New("reranker response is missing ranked_results")
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	assigned := make(map[int]struct{}, len(candidates))
	for _, item := range items.Array() {
		index := resolveRankedIndex(item, candidates, assigned)
		if index < 0 {
			continue
		}
		assigned[index] = struct{}{}

		score := defaultMissingScore
		reasoning := strings.TrimSpace(item.Get("reasoning").String())
		value := item.Get("relevance_score")
		if value.Exists() && value.Type != gjson.Null && (value.Type == gjson.Number || value.Type == gjson.String) {
			score = clampScore(value.Float())
		} else if reasoning == "" {
			reasoning = reasoningNoScore
		}
		ranked = append(ranked, RankedCandidate{
			SearchCandidate: candidates[index],
			RelevanceScore:  score,
			Reasoning:       reasoning,
		})
	}
	if len(ranked) == 0 {
		return nil, errors.New("reranker response scored no known candidates")
	}

	for index, candidate := range candidates {
		if _, ok := assigned[index]; ok {
			continue
		}
		ranked = append(ranked, RankedCandidate{
			SearchCandidate: candidate,
			RelevanceScore:  0,
			Reasoning:       reasoningNotScored,
		})
	}
	return ranked, nil
}

// resolveRankedIndex maps an item to a candidate by its 1-based id, falling
// back to the first unassigned candidate with a matching pageid.
func resolveRankedIndex(item gjson.Result, candidates []SearchCandidate, assigned map[int]struct{}) int {
	if id := item.Get("id"); id.Exists() {
		index := int(id.Int()) - 1
		if index < 0 || index >= len(candidates) {
			return -1
		}
		if _, taken := assigned[index]; taken {
			return -1
		}
		return index
	}
	pageID := int(item.Get("pageid").Int())
	if pageID <= 0 {
		return -1
	}
	for index, candidate := range candidates {
		if _, taken := assigned[index]; taken {
			continue
		}
		if candidate.PageID == pageID {
			return index
		}
	}
	return -1
}
