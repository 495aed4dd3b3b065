package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gmarcinek/semantic-k/internal/wikipedia"
)

// clientStub answers searches by query, or from the "*" entry for any query.
type clientStub struct {
	results    map[string][]wikipedia.SearchResult
	err        error
	block      bool
	pages      map[int]wikipedia.Page
	pageErr    error
	summaries  map[string]wikipedia.Summary
	summaryErr error
	media      []string
	mediaErr   error

	searches atomic.Int32
}

func (s *clientStub) Search(ctx context.Context, query string, limit int) ([]wikipedia.SearchResult, error) {
	s.searches.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	hits, ok := s.results[query]
	if !ok {
		hits = s.results["*"]
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *clientStub) FullArticleByPageID(_ context.Context, pageID int, maxChars int) (wikipedia.Page, error) {
	if s.pageErr != nil {
		return wikipedia.Page{}, s.pageErr
	}
	page, ok := s.pages[pageID]
	if !ok {
		return wikipedia.Page{}, wikipedia.ErrArticleNotFound
	}
	page.Extract = trimToRunes(page.Extract, maxChars)
	return page, nil
}

func (s *clientStub) SummaryByTitle(_ context.Context, title string) (wikipedia.Summary, error) {
	if s.summaryErr != nil {
		return wikipedia.Summary{}, s.summaryErr
	}
	summary, ok := s.summaries[title]
	if !ok {
		return wikipedia.Summary{}, wikipedia.ErrArticleNotFound
	}
	return summary, nil
}

func (s *clientStub) MediaByTitle(_ context.Context, _ string) ([]string, error) {
	if s.mediaErr != nil {
		return nil, s.mediaErr
	}
	return s.media, nil
}

func factoryFor(clients map[string]*clientStub) ClientFactory {
	return func(language string) LanguageClient {
		client, ok := clients[language]
		if !ok {
			return nil
		}
		return client
	}
}

// goodResults builds hits with snippets long enough to count as good quality.
func goodResults(firstPageID, count int, prefix string) []wikipedia.SearchResult {
	out := make([]wikipedia.SearchResult, 0, count)
	for i := 0; i < count; i++ {
		pageID := firstPageID + i
		out = append(out, wikipedia.SearchResult{
			PageID:  pageID,
			Title:   fmt.Sprintf("%s %d", prefix, pageID),
			Snippet: strings.Repeat("informative snippet text ", 3),
		})
	}
	return out
}

type responderStub struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (r *responderStub) Respond(_ context.Context, _ string, prompt string) (string, error) {
	r.calls++
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return "", r.err
	}
	return r.response, nil
}

type rerankerStub struct {
	ranked []RankedCandidate
	err    error
	model  string
}

func (r rerankerStub) Rerank(_ context.Context, _ string, candidates []SearchCandidate, topN int) ([]RankedCandidate, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.ranked != nil {
		return r.ranked, nil
	}
	return linearDecay(candidates, topN, "stub"), nil
}

func (r rerankerStub) ModelName() string {
	return r.model
}

type intentStub struct {
	resolution IntentResolution
	err        error
}

func (i intentStub) Analyze(_ context.Context, _ string, _ []RankedCandidate, _ []ChatMessage) (IntentResolution, error) {
	return i.resolution, i.err
}
