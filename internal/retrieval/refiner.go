package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const refinedQueriesPerLanguage = 3

// QueryRefiner turns a user prompt into search queries. It always returns
// something searchable, at worst the prompt itself.
type QueryRefiner interface {
	Refine(ctx context.Context, prompt string, history []ChatMessage) Queries
}

type PassthroughRefiner struct{}

func (PassthroughRefiner) Refine(_ context.Context, prompt string, _ []ChatMessage) Queries {
	return FlatQueries(strings.TrimSpace(prompt))
}

type JSONQueryRefiner struct {
	responder PromptResponder
	languages []string
	logger    *zap.Logger
}

func NewJSONQueryRefiner(responder PromptResponder, languages []string, logger *zap.Logger) JSONQueryRefiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return JSONQueryRefiner{
		responder: responder,
		languages: dedupeStrings(languages, 0),
		logger:    logger,
	}
}

func (r JSONQueryRefiner) Refine(ctx context.Context, prompt string, history []ChatMessage) Queries {
	prompt = strings.TrimSpace(prompt)
	if r.responder == nil || prompt == "" {
		return PassthroughRefiner{}.Refine(ctx, prompt, history)
	}

	raw, err := r.responder.Respond(ctx, refinerSystemPrompt, buildRefinePrompt(prompt, history, r.languages, refinedQueriesPerLanguage))
	if err != nil {
		r.logger.Warn("query refinement failed; searching with the prompt", zap.Error(err))
		return PassthroughRefiner{}.Refine(ctx, prompt, history)
	}

	queries, err := parseRefinedQueries(raw)
	if err != nil {
		if directives := ExtractSearchDirectives(raw); len(directives) > 0 {
			return FlatQueries(dedupeStrings(directives, refinedQueriesPerLanguage)...)
		}
		r.logger.Warn("query refiner returned unusable output; searching with the prompt", zap.Error(err))
		return PassthroughRefiner{}.Refine(ctx, prompt, history)
	}
	r.logger.Debug("refined queries", zap.Strings("languages", queries.Languages()))
	return queries
}

func parseRefinedQueries(raw string) (Queries, error) {
	block := extractJSONBlock(raw)
	if block == "" || !gjson.Valid(block) {
		return Queries{}, errors.New("refiner response did not include json")
	}
	parsed := gjson.Parse(block)

	if byLanguage := parsed.Get("queries_by_language"); byLanguage.IsObject() {
		var entries []LanguageQueries
		byLanguage.ForEach(func(key, value gjson.Result) bool {
			language := normalizeLanguage(key.String())
			if language == "" || !value.IsArray() {
				return true
			}
			queries := dedupeStrings(stringItems(value), refinedQueriesPerLanguage)
			if len(queries) > 0 {
				entries = append(entries, LanguageQueries{Language: language, Queries: queries})
			}
			return true
		})
		if len(entries) > 0 {
			return KeyedQueries(entries...), nil
		}
	}
	if flat := parsed.Get("queries"); flat.IsArray() {
		if queries := dedupeStrings(stringItems(flat), refinedQueriesPerLanguage); len(queries) > 0 {
			return FlatQueries(queries...), nil
		}
	}
	return Queries{}, errors.New("refiner response contained no queries")
}

func stringItems(value gjson.Result) []string {
	var out []string
	for _, item := range value.Array() {
		if item.Type == gjson.String {
			out = append(out, item.String())
		}
	}
	return out
}
