package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPrimaryLanguage = "pl"
	minMaxTotal            = 1
	maxMaxTotal            = 10
)

// Coordinator drives one retrieval: fan-out search, merge, rerank, intent,
// fetch, translate. It keeps no results between calls.
type Coordinator struct {
	registry   *clientRegistry
	reranker   Reranker
	intents    IntentResolver
	translator Translator
	fetcher    ArticleFetcher
	cfg        CoordinatorConfig
	maxTotal   int
	logger     *zap.Logger
	recorder   Recorder
}

type languageResult struct {
	language   string
	candidates []SearchCandidate
	err        error
}

type contextPick struct {
	topic     IntentTopic
	candidate RankedCandidate
}

// NewCoordinator fills nil collaborators with their deterministic defaults.
func NewCoordinator(
	factory ClientFactory,
	reranker Reranker,
	intents IntentResolver,
	translator Translator,
	cfg CoordinatorConfig,
	logger *zap.Logger,
	recorder Recorder,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reranker == nil {
		reranker = LinearDecayReranker{}
	}
	if intents == nil {
		intents = TopRankedResolver{}
	}
	if translator == nil {
		translator = PrefixTranslator{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	cfg.PrimaryLanguage = normalizeLanguage(cfg.PrimaryLanguage)
	if cfg.PrimaryLanguage == "" {
		cfg.PrimaryLanguage = defaultPrimaryLanguage
	}
	maxTotal := clampMaxTotal(cfg.MaxResults)
	if cfg.PerQueryLimit <= 0 {
		cfg.PerQueryLimit = maxTotal
	}
	if cfg.ExtractLength <= 0 {
		cfg.ExtractLength = primaryExtractLimit
	}

	return &Coordinator{
		registry:   newClientRegistry(factory),
		reranker:   reranker,
		intents:    intents,
		translator: translator,
		fetcher:    NewArticleFetcher(cfg.PrimaryLanguage, cfg.ExtractLength, logger),
		cfg:        cfg,
		maxTotal:   maxTotal,
		logger:     logger,
		recorder:   recorder,
	}
}

func (c *Coordinator) MaxTotal() int {
	return c.maxTotal
}

// Search returns ("", nil, nil) when no candidate survives aggregation. The
// error is non-nil only when ctx ends before evidence could be gathered.
func (c *Coordinator) Search(ctx context.Context, queries Queries, originalPrompt string, history []ChatMessage) (string, *Bundle, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	retrievalID := uuid.NewString()
	logger := c.logger.With(zap.String("retrieval_id", retrievalID))
	originalPrompt = strings.TrimSpace(originalPrompt)

	languages := c.languageOrder(queries)
	queriesByLanguage := NormalizeQueries(queries, languages, originalPrompt)

	started := time.Now()
	searched, merged := c.collect(ctx, languages, queriesByLanguage, logger)
	c.recorder.StageDuration(StageSearch, time.Since(started))
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if len(merged) == 0 {
		logger.Info("no candidates found", zap.Strings("languages", searched))
		return "", nil, nil
	}

	ranked, reranked, model := c.rerank(ctx, rerankQuery(originalPrompt, queriesByLanguage, c.cfg.PrimaryLanguage), merged, logger)

	started = time.Now()
	resolution, err := c.intents.Analyze(ctx, originalPrompt, ranked, history)
	c.recorder.StageDuration(StageIntent, time.Since(started))
	if err != nil {
		logger.Warn("intent resolution failed; using top-ranked result", zap.Error(err))
		resolution = IntentResolution{Notes: notesIntentFailed}
	}
	primaryTopic, primary := resolvePrimary(resolution, ranked)
	picks := c.resolveContext(resolution, ranked, primary, logger)

	started = time.Now()
	articles, sources, contextTopics := c.fetch(ctx, primary, picks)
	c.recorder.StageDuration(StageFetch, time.Since(started))

	started = time.Now()
	articles, sources = c.translator.Translate(ctx, articles, sources, c.cfg.PrimaryLanguage)
	c.recorder.StageDuration(StageTranslate, time.Since(started))

	echoed := make(map[string][]string, len(searched))
	for _, language := range searched {
		echoed[language] = cloneStrings(queriesByLanguage[language])
	}

	bundle := &Bundle{
		RetrievalID:       retrievalID,
		Query:             querySummary(searched, queriesByLanguage, originalPrompt),
		Sources:           sources,
		TotalResults:      len(merged),
		Reranked:          reranked,
		RerankingModel:    model,
		PrimaryTopic:      primaryTopic.Title,
		LanguagesUsed:     languagesUsed(sources),
		QueriesByLanguage: echoed,
		ContextTopics:     contextTopics,
		IntentNotes:       resolution.Notes,
	}
	if len(articles) > 0 {
		bundle.PrimaryPageID = articles[0].PageID
		bundle.PrimaryLanguage = articles[0].Language
	}

	logger.Info("retrieval complete",
		zap.Int("candidates", len(merged)),
		zap.Int("sources", len(sources)),
		zap.Bool("reranked", reranked),
		zap.Strings("languages_used", bundle.LanguagesUsed),
	)
	return BuildContextText(articles, c.cfg.PrimaryLanguage), bundle, nil
}

// languageOrder is primary, configured fallbacks, then languages only named by the queries.
func (c *Coordinator) languageOrder(queries Queries) []string {
	ordered := []string{c.cfg.PrimaryLanguage}
	ordered = append(ordered, c.cfg.FallbackLanguages...)
	ordered = append(ordered, queries.Languages()...)

	seen := make(map[string]struct{}, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, language := range ordered {
		code := normalizeLanguage(language)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// collect searches the primary language first and the remaining languages
// only when the primary results are too thin. It returns the languages
// actually searched and the merged candidates.
func (c *Coordinator) collect(ctx context.Context, languages []string, queriesByLanguage map[string][]string, logger *zap.Logger) ([]string, []SearchCandidate) {
	primary := c.searchLanguages(ctx, languages[:1], queriesByLanguage)[0]
	searched := []string{primary.language}

	var failures *multierror.Error
	if primary.err != nil {
		failures = multierror.Append(failures, fmt.Errorf("%s: %w", primary.language, primary.err))
	}

	merged := make([]SearchCandidate, 0, c.maxTotal)
	seen := make(map[string]struct{}, c.maxTotal)
	merged = c.appendUnique(merged, seen, primary.candidates)
	logger.Info("language contribution", zap.String("language", primary.language), zap.Int("results", len(merged)))

	needsMore := NeedsAdditionalLanguages(primary.candidates, c.maxTotal) && len(languages) > 1
	c.recorder.FallbackDecision(needsMore)
	logger.Debug("fallback gate",
		zap.Bool("triggered", needsMore),
		zap.Int("primary_results", len(primary.candidates)),
	)

	if needsMore {
		fallbacks := c.searchLanguages(ctx, languages[1:], queriesByLanguage)
		for _, result := range fallbacks {
			searched = append(searched, result.language)
			if result.err != nil {
				failures = multierror.Append(failures, fmt.Errorf("%s: %w", result.language, result.err))
			}
		}
		for _, result := range fallbacks {
			if len(merged) >= c.maxTotal || !NeedsAdditionalLanguages(merged, c.maxTotal) {
				break
			}
			before := len(merged)
			merged = c.appendUnique(merged, seen, result.candidates)
			logger.Info("language contribution", zap.String("language", result.language), zap.Int("results", len(merged)-before))
		}
	}

	if err := failures.ErrorOrNil(); err != nil {
		logger.Warn("language searches failed", zap.Error(err))
	}
	return searched, merged
}

// searchLanguages runs one task per language. Tasks write to their own slot
// and never return an error, so one failing language cannot cancel the rest.
func (c *Coordinator) searchLanguages(ctx context.Context, languages []string, queriesByLanguage map[string][]string) []languageResult {
	results := make([]languageResult, len(languages))
	var g errgroup.Group
	for i, language := range languages {
		i, language := i, language
		g.Go(func() error {
			taskCtx := ctx
			if c.cfg.LanguageTimeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, c.cfg.LanguageTimeout)
				defer cancel()
			}
			results[i] = c.searchLanguage(taskCtx, language, queriesByLanguage[language])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) searchLanguage(ctx context.Context, language string, queries []string) languageResult {
	result := languageResult{language: language}
	client := c.registry.get(language)
	if client == nil {
		result.err = errors.New("no client for language")
		c.recorder.LanguageSearched(language, 0, result.err)
		return result
	}
	if len(queries) > maxQueriesSearched {
		queries = queries[:maxQueriesSearched]
	}

	var errs *multierror.Error
	seenIDs := make(map[int]struct{})
	seenTitles := make(map[string]struct{})
	for _, query := range queries {
		if len(result.candidates) >= c.maxTotal || ctx.Err() != nil {
			break
		}
		hits, err := client.Search(ctx, query, c.cfg.PerQueryLimit)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("query %q: %w", query, err))
			continue
		}
		for _, hit := range hits {
			title := strings.ToLower(strings.TrimSpace(hit.Title))
			if _, dup := seenIDs[hit.PageID]; dup && hit.PageID > 0 {
				continue
			}
			if _, dup := seenTitles[title]; dup {
				continue
			}
			if hit.PageID > 0 {
				seenIDs[hit.PageID] = struct{}{}
			}
			seenTitles[title] = struct{}{}
			result.candidates = append(result.candidates, SearchCandidate{
				PageID:   hit.PageID,
				Title:    hit.Title,
				Snippet:  hit.Snippet,
				Language: language,
			})
			if len(result.candidates) >= c.maxTotal {
				break
			}
		}
	}
	if len(result.candidates) == 0 {
		if err := errs.ErrorOrNil(); err != nil {
			result.err = err
		} else if err := ctx.Err(); err != nil {
			result.err = err
		}
	}
	c.recorder.LanguageSearched(language, len(result.candidates), result.err)
	return result
}

func (c *Coordinator) appendUnique(merged []SearchCandidate, seen map[string]struct{}, candidates []SearchCandidate) []SearchCandidate {
	for _, candidate := range candidates {
		if len(merged) >= c.maxTotal {
			break
		}
		key := candidateKey(candidate.Language, candidate.PageID, candidate.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, candidate)
	}
	return merged
}

// rerank falls back to search order with decaying scores when the reranker fails.
func (c *Coordinator) rerank(ctx context.Context, query string, merged []SearchCandidate, logger *zap.Logger) ([]RankedCandidate, bool, string) {
	topN := min(len(merged), c.maxTotal)

	started := time.Now()
	ranked, err := c.reranker.Rerank(ctx, query, merged, topN)
	c.recorder.StageDuration(StageRerank, time.Since(started))

	model := c.reranker.ModelName()
	if err != nil || len(ranked) == 0 {
		if err == nil {
			err = errors.New("reranker returned no candidates")
		}
		if model != "" {
			logger.Warn("reranking failed; using search order", zap.String("model", model), zap.Error(err))
		}
		return linearDecay(merged, topN, reasoningRerankError), false, ""
	}
	if model == "" {
		return ranked, false, ""
	}
	return ranked, true, model
}

// resolvePrimary substitutes the top-ranked candidate when the resolver names
// no primary or one that is not among the ranked candidates.
func resolvePrimary(resolution IntentResolution, ranked []RankedCandidate) (IntentTopic, RankedCandidate) {
	if resolution.Primary != nil {
		if candidate, ok := matchTopic(*resolution.Primary, ranked); ok {
			return IntentTopic{
				PageID:    candidate.PageID,
				Title:     candidate.Title,
				Language:  candidate.Language,
				Role:      RolePrimary,
				Reasoning: resolution.Primary.Reasoning,
			}, candidate
		}
	}
	top := ranked[0]
	return IntentTopic{
		PageID:    top.PageID,
		Title:     top.Title,
		Language:  top.Language,
		Role:      RolePrimary,
		Reasoning: reasoningTopRanked,
	}, top
}

// resolveContext keeps matched context topics in resolver order and backfills
// the remaining capacity from the ranking.
func (c *Coordinator) resolveContext(resolution IntentResolution, ranked []RankedCandidate, primary RankedCandidate, logger *zap.Logger) []contextPick {
	capacity := c.maxTotal - 1
	if capacity <= 0 {
		return nil
	}
	seen := map[string]struct{}{
		candidateKey(primary.Language, primary.PageID, primary.Title): {},
	}

	picks := make([]contextPick, 0, capacity)
	for _, topic := range resolution.Context {
		if len(picks) >= capacity {
			break
		}
		candidate, ok := matchTopic(topic, ranked)
		if !ok {
			logger.Debug("dropping unmatched context topic", zap.String("title", topic.Title), zap.Int("pageid", topic.PageID))
			continue
		}
		key := candidateKey(candidate.Language, candidate.PageID, candidate.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		picks = append(picks, contextPick{
			topic: IntentTopic{
				PageID:    candidate.PageID,
				Title:     candidate.Title,
				Language:  candidate.Language,
				Role:      RoleContext,
				Reasoning: topic.Reasoning,
			},
			candidate: candidate,
		})
	}

	for _, candidate := range ranked {
		if len(picks) >= capacity {
			break
		}
		key := candidateKey(candidate.Language, candidate.PageID, candidate.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		picks = append(picks, contextPick{
			topic: IntentTopic{
				PageID:    candidate.PageID,
				Title:     candidate.Title,
				Language:  candidate.Language,
				Role:      RoleContext,
				Reasoning: reasoningAutoSelected,
			},
			candidate: candidate,
		})
	}
	return picks
}

func (c *Coordinator) fetch(ctx context.Context, primary RankedCandidate, picks []contextPick) ([]Article, []Source, []IntentTopic) {
	articles := make([]Article, 0, 1+len(picks))
	sources := make([]Source, 0, 1+len(picks))
	topics := make([]IntentTopic, 0, len(picks))
	seen := make(map[string]struct{}, 1+len(picks))

	add := func(article Article, score float64, role Role) bool {
		key := candidateKey(article.Language, article.PageID, article.Title)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		articles = append(articles, article)
		sources = append(sources, Source{
			Title:          article.Title,
			URL:            article.URL,
			PageID:         article.PageID,
			Extract:        trimToRunes(article.Extract, sourceExtractLimit(role)),
			RelevanceScore: score,
			ImageURL:       article.ImageURL,
			Images:         article.Images,
			Language:       article.Language,
			Role:           role,
		})
		return true
	}

	add(c.fetchArticle(ctx, primary, RolePrimary), primary.RelevanceScore, RolePrimary)
	for _, pick := range picks {
		if len(articles) >= c.maxTotal {
			break
		}
		if add(c.fetchArticle(ctx, pick.candidate, RoleContext), pick.candidate.RelevanceScore, RoleContext) {
			topics = append(topics, pick.topic)
		}
	}
	return articles, sources, topics
}

func (c *Coordinator) fetchArticle(ctx context.Context, candidate RankedCandidate, role Role) Article {
	client := c.registry.get(candidate.Language)
	if client == nil {
		language := c.fetcher.languageOf(candidate.SearchCandidate)
		return Article{
			Title:    candidate.Title,
			Extract:  trimToRunes(candidate.Snippet, sourceExtractLimit(role)),
			URL:      c.fetcher.BuildURL(candidate.PageID, language),
			PageID:   candidate.PageID,
			Language: language,
			Images:   []string{},
		}
	}
	if role == RolePrimary {
		return c.fetcher.FetchPrimary(ctx, client, candidate)
	}
	return c.fetcher.FetchContext(ctx, client, candidate)
}

func rerankQuery(originalPrompt string, queriesByLanguage map[string][]string, primaryLanguage string) string {
	if originalPrompt != "" {
		return originalPrompt
	}
	if queries := queriesByLanguage[primaryLanguage]; len(queries) > 0 {
		return queries[0]
	}
	return ""
}

// querySummary renders "pl: q1, q2; en: q1" over the searched languages.
func querySummary(languages []string, queriesByLanguage map[string][]string, fallback string) string {
	parts := make([]string, 0, len(languages))
	for _, language := range languages {
		queries := queriesByLanguage[language]
		if len(queries) > maxQueriesSearched {
			queries = queries[:maxQueriesSearched]
		}
		if len(queries) == 0 {
			continue
		}
		parts = append(parts, language+": "+strings.Join(queries, ", "))
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "; ")
}

func languagesUsed(sources []Source) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, source := range sources {
		language := normalizeLanguage(source.Language)
		if language == "" {
			continue
		}
		if _, ok := seen[language]; ok {
			continue
		}
		seen[language] = struct{}{}
		out = append(out, language)
	}
	sort.Strings(out)
	return out
}

func clampMaxTotal(value int) int {
	if value < minMaxTotal {
		return minMaxTotal
	}
	if value > maxMaxTotal {
		return maxMaxTotal
	}
	return value
}
