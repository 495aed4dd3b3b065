// Package pipeline wires configuration into the retrieval core so the server
// and the CLI run the same components.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmarcinek/semantic-k/internal/config"
	"github.com/gmarcinek/semantic-k/internal/openrouter"
	"github.com/gmarcinek/semantic-k/internal/retrieval"
	"github.com/gmarcinek/semantic-k/internal/wikipedia"
)

const (
	openRouterTimeout    = 60 * time.Second
	rankingTemperature   = 0.0
	refinerTemperature   = 0.2
	translateTemperature = 0.1
)

type strategyRecorder interface {
	StrategySelected(strategy retrieval.Strategy)
}

type Pipeline struct {
	coordinator *retrieval.Coordinator
	refiner     retrieval.QueryRefiner
	thresholds  retrieval.Thresholds
	timeout     time.Duration
	recorder    retrieval.Recorder
	logger      *zap.Logger
}

type Result struct {
	Context  string             `json:"context"`
	Bundle   *retrieval.Bundle  `json:"bundle"`
	Decision retrieval.Decision `json:"decision"`
}

// Build creates Wikipedia clients that share one rate limiter and, when an API
// key is configured, the OpenRouter-backed collaborators.
func Build(cfg config.Config, logger *zap.Logger, recorder retrieval.Recorder) Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	wikiHTTP := &http.Client{Timeout: cfg.WikipediaHTTPTimeout}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.WikipediaRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WikipediaRequestsPerSecond), cfg.WikipediaRequestsPerSecond)
	}
	options := wikipedia.Options{
		BaseURL:    cfg.WikipediaBaseURL,
		UserAgent:  cfg.WikipediaUserAgent,
		MaxRetries: cfg.WikipediaMaxRetries,
	}
	factory := func(language string) retrieval.LanguageClient {
		return wikipedia.NewClient(language, options, wikiHTTP, limiter)
	}

	var llm completer
	if client := openrouter.NewClient(cfg, &http.Client{Timeout: openRouterTimeout}); client.Configured() {
		llm = client
	}
	return build(cfg, logger, recorder, factory, llm)
}

func build(cfg config.Config, logger *zap.Logger, recorder retrieval.Recorder, factory retrieval.ClientFactory, llm completer) Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	responder := func(feature string, enabled bool, model string, temperature float64) retrieval.PromptResponder {
		if !enabled {
			return nil
		}
		out := newOpenRouterResponder(llm, model, temperature)
		if out == nil {
			logger.Warn("llm collaborator disabled; openrouter is not configured", zap.String("feature", feature))
		}
		return out
	}

	var reranker retrieval.Reranker = retrieval.LinearDecayReranker{}
	if r := responder("rerank", cfg.RerankEnabled, cfg.RerankModel, rankingTemperature); r != nil {
		reranker = retrieval.NewLLMReranker(r, cfg.RerankModel)
	}

	var intents retrieval.IntentResolver = retrieval.TopRankedResolver{}
	if r := responder("intent", cfg.IntentEnabled, cfg.IntentModel, rankingTemperature); r != nil {
		intents = retrieval.NewLLMIntentResolver(r)
	}

	var translator retrieval.Translator = retrieval.PrefixTranslator{}
	if r := responder("translation", cfg.TranslationEnabled, cfg.TranslationModel, translateTemperature); r != nil {
		translator = retrieval.NewLLMTranslator(r, cfg.TranslationTarget, cfg.TranslationMaxChars, logger)
	}

	var refiner retrieval.QueryRefiner = retrieval.PassthroughRefiner{}
	if r := responder("query_refiner", cfg.QueryRefinerEnabled, cfg.QueryRefinerModel, refinerTemperature); r != nil {
		refiner = retrieval.NewJSONQueryRefiner(r, cfg.Languages(), logger)
	}

	coordinator := retrieval.NewCoordinator(factory, reranker, intents, translator, retrieval.CoordinatorConfig{
		PrimaryLanguage:   cfg.PrimaryLanguage,
		FallbackLanguages: cfg.FallbackLanguages,
		MaxResults:        cfg.MaxResults,
		PerQueryLimit:     cfg.PerQueryLimit,
		ExtractLength:     cfg.ExtractLength,
		LanguageTimeout:   cfg.LanguageTimeout,
	}, logger, recorder)

	return Pipeline{
		coordinator: coordinator,
		refiner:     refiner,
		thresholds:  retrieval.Thresholds{Perfect: cfg.PerfectThreshold, Answer: cfg.AnswerThreshold},
		timeout:     cfg.RetrievalTimeout,
		recorder:    recorder,
		logger:      logger,
	}
}

// Run refines queries when none are given, retrieves under the call timeout
// and classifies the outcome. A nil bundle means no evidence was found.
func (p Pipeline) Run(ctx context.Context, prompt string, queries retrieval.Queries, history []retrieval.ChatMessage) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" && queries.IsEmpty() {
		return Result{}, errors.New("prompt or queries are required")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if queries.IsEmpty() {
		queries = p.refiner.Refine(ctx, prompt, history)
	}

	contextText, bundle, err := p.coordinator.Search(ctx, queries, prompt, history)
	if err != nil {
		return Result{}, err
	}

	decision := retrieval.SelectStrategy(bundle, p.thresholds)
	if recorder, ok := p.recorder.(strategyRecorder); ok {
		recorder.StrategySelected(decision.Strategy)
	}
	p.logger.Debug("strategy selected", zap.String("strategy", string(decision.Strategy)))
	return Result{Context: contextText, Bundle: bundle, Decision: decision}, nil
}
