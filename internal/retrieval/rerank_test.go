package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCandidates() []SearchCandidate {
	return []SearchCandidate{
		{PageID: 10, Title: "Alpha", Snippet: "first", Language: "pl"},
		{PageID: 20, Title: "Beta", Snippet: "second", Language: "pl"},
		{PageID: 10, Title: "Alpha", Snippet: "first", Language: "en"},
	}
}

func TestLinearDecayReranker(t *testing.T) {
	candidates := make([]SearchCandidate, 25)
	for i := range candidates {
		candidates[i] = SearchCandidate{PageID: i + 1, Title: "t"}
	}

	ranked, err := LinearDecayReranker{}.Rerank(context.Background(), "q", candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 25)
	assert.InDelta(t, 1.0, ranked[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.95, ranked[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.90, ranked[2].RelevanceScore, 1e-9)
	assert.Equal(t, 0.0, ranked[24].RelevanceScore)
	assert.Equal(t, reasoningRerankOff, ranked[0].Reasoning)

	truncated, err := LinearDecayReranker{}.Rerank(context.Background(), "q", candidates, 3)
	require.NoError(t, err)
	assert.Len(t, truncated, 3)
	assert.Empty(t, LinearDecayReranker{}.ModelName())
}

func TestLLMRerankerSortsAndFillsGaps(t *testing.T) {
	responder := &responderStub{response: "```json\n" + `{"ranked_results":[
		{"id":2,"relevance_score":0.91,"reasoning":"direct"},
		{"id":3},
		{"id":9,"relevance_score":1.0},
		{"id":2,"relevance_score":0.1}
	]}` + "\n```"}
	reranker := NewLLMReranker(responder, " some/model ")

	ranked, err := reranker.Rerank(context.Background(), "query", sampleCandidates(), 3)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "Beta", ranked[0].Title)
	assert.InDelta(t, 0.91, ranked[0].RelevanceScore, 1e-9)
	assert.Equal(t, "direct", ranked[0].Reasoning)

	assert.Equal(t, "en", ranked[1].Language)
	assert.InDelta(t, defaultMissingScore, ranked[1].RelevanceScore, 1e-9)
	assert.Equal(t, reasoningNoScore, ranked[1].Reasoning)

	assert.Equal(t, "pl", ranked[2].Language)
	assert.Equal(t, 0.0, ranked[2].RelevanceScore)
	assert.Equal(t, reasoningNotScored, ranked[2].Reasoning)

	assert.Equal(t, "some/model", reranker.ModelName())
	assert.Equal(t, 1, responder.calls)
}

func TestLLMRerankerClampsAndTruncates(t *testing.T) {
	responder := &responderStub{response: `{"ranked_results":[{"id":1,"relevance_score":1.7},{"id":2,"relevance_score":-3},{"id":3,"relevance_score":"0.4"}]}`}

	ranked, err := NewLLMReranker(responder, "m").Rerank(context.Background(), "query", sampleCandidates(), 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1.0, ranked[0].RelevanceScore)
	assert.InDelta(t, 0.4, ranked[1].RelevanceScore, 1e-9)
}

func TestLLMRerankerMatchesByPageIDWhenIDMissing(t *testing.T) {
	responder := &responderStub{response: `{"ranked_results":[{"pageid":20,"relevance_score":0.7}]}`}

	ranked, err := NewLLMReranker(responder, "m").Rerank(context.Background(), "query", sampleCandidates(), 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "Beta", ranked[0].Title)
}

func TestLLMRerankerErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder *responderStub
	}{
		{name: "responder error", responder: &responderStub{err: errors.New("boom")}},
		{name: "not json", responder: &responderStub{response: "I cannot help with that"}},
		{name: "missing list", responder: &responderStub{response: `{"results":[]}`}},
		{name: "no known ids", responder: &responderStub{response: `{"ranked_results":[{"id":42,"relevance_score":0.9}]}`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLLMReranker(tc.responder, "m").Rerank(context.Background(), "query", sampleCandidates(), 3)
			assert.Error(t, err)
		})
	}
}

func TestLLMRerankerSkipsEmptyInput(t *testing.T) {
	responder := &responderStub{}
	ranked, err := NewLLMReranker(responder, "m").Rerank(context.Background(), "query", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Zero(t, responder.calls)
}

func TestBuildRerankPromptNumbersCandidates(t *testing.T) {
	prompt := buildRerankPrompt("who", sampleCandidates())
	assert.Contains(t, prompt, "id=1 | language=pl | pageid=10 | title=Alpha")
	assert.Contains(t, prompt, "id=3 | language=en | pageid=10 | title=Alpha")
	assert.Contains(t, prompt, "ranked_results")
}
