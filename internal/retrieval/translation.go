package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const defaultTranslationMaxChars = 1600

// Translator rewrites titles and extracts for display. It never fails the
// whole call; entries it cannot translate keep their original text.
type Translator interface {
	Translate(ctx context.Context, articles []Article, sources []Source, defaultLanguage string) ([]Article, []Source)
}

// PrefixTranslator only marks every entry with its language code.
type PrefixTranslator struct{}

func (PrefixTranslator) Translate(_ context.Context, articles []Article, sources []Source, defaultLanguage string) ([]Article, []Source) {
	outArticles := make([]Article, 0, len(articles))
	for _, article := range articles {
		language := displayLanguage(article.Language, defaultLanguage)
		article.Title = formatWithLanguageCode(article.Title, language)
		article.Language = language
		outArticles = append(outArticles, article)
	}
	outSources := make([]Source, 0, len(sources))
	for _, source := range sources {
		language := displayLanguage(source.Language, defaultLanguage)
		source.Title = formatWithLanguageCode(source.Title, language)
		source.Language = language
		outSources = append(outSources, source)
	}
	return outArticles, outSources
}

type translatedEntry struct {
	Title   string
	Extract string
}

type LLMTranslator struct {
	responder PromptResponder
	target    string
	maxChars  int
	logger    *zap.Logger
}

func NewLLMTranslator(responder PromptResponder, targetLanguage string, maxChars int, logger *zap.Logger) LLMTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxChars <= 0 {
		maxChars = defaultTranslationMaxChars
	}
	return LLMTranslator{
		responder: responder,
		target:    normalizeLanguage(targetLanguage),
		maxChars:  maxChars,
		logger:    logger,
	}
}

func (t LLMTranslator) Translate(ctx context.Context, articles []Article, sources []Source, defaultLanguage string) ([]Article, []Source) {
	// Scoped to this call so an entry shared by an article and a source is translated once.
	cache, err := lru.New[string, translatedEntry](max(1, len(articles)+len(sources)))
	if err != nil {
		t.logger.Warn("translation cache unavailable", zap.Error(err))
		return PrefixTranslator{}.Translate(ctx, articles, sources, defaultLanguage)
	}

	outArticles := make([]Article, 0, len(articles))
	for _, article := range articles {
		language := displayLanguage(article.Language, defaultLanguage)
		article.Language = language
		if language == t.target {
			outArticles = append(outArticles, article)
			continue
		}
		entry := t.lookup(ctx, cache, language, article.PageID, article.Title, article.Extract)
		article.Title = formatWithLanguageCode(entry.Title, language)
		article.Extract = entry.Extract
		outArticles = append(outArticles, article)
	}

	outSources := make([]Source, 0, len(sources))
	for _, source := range sources {
		language := displayLanguage(source.Language, defaultLanguage)
		source.Language = language
		if language == t.target {
			outSources = append(outSources, source)
			continue
		}
		entry := t.lookup(ctx, cache, language, source.PageID, source.Title, source.Extract)
		source.Title = formatWithLanguageCode(entry.Title, language)
		source.Extract = trimToRunes(entry.Extract, sourceExtractLimit(source.Role))
		outSources = append(outSources, source)
	}
	return outArticles, outSources
}

func (t LLMTranslator) lookup(ctx context.Context, cache *lru.Cache[string, translatedEntry], language string, pageID int, title, extract string) translatedEntry {
	key := translationKey(language, pageID, title)
	if entry, ok := cache.Get(key); ok {
		return entry
	}
	entry, err := t.translateEntry(ctx, title, extract, language)
	if err != nil {
		t.logger.Warn("translation failed; keeping original text",
			zap.String("language", language),
			zap.String("title", title),
			zap.Error(err),
		)
	}
	cache.Add(key, entry)
	return entry
}

// translateEntry always returns usable text; on error it is the original title
// and extract. Only the prompt is bounded by maxChars.
func (t LLMTranslator) translateEntry(ctx context.Context, title, extract, sourceLanguage string) (translatedEntry, error) {
	title = strings.TrimSpace(title)
	extract = strings.TrimSpace(extract)
	trimmed := trimToRunes(extract, t.maxChars)
	fallback := translatedEntry{Title: title, Extract: extract}
	if title == "" && extract == "" {
		return fallback, nil
	}
	if t.responder == nil {
		return fallback, errors.New("translation responder unavailable")
	}

	raw, err := t.responder.Respond(ctx, translateSystemPrompt, buildTranslatePrompt(title, trimmed, sourceLanguage, t.target))
	if err != nil {
		return fallback, fmt.Errorf("translate: %w", err)
	}
	block := extractJSONBlock(raw)
	if block == "" || !gjson.Valid(block) {
		return fallback, errors.New("translation response did not include json")
	}
	parsed := gjson.Parse(block)
	return translatedEntry{
		Title:   firstNonEmpty(parsed.Get("title").String(), title),
		Extract: firstNonEmpty(parsed.Get("extract").String(), extract),
	}, nil
}

func translationKey(language string, pageID int, title string) string {
	return candidateKey(language, pageID, title)
}

func sourceExtractLimit(role Role) int {
	if role == RolePrimary {
		return primaryExtractLimit
	}
	return contextExtractLimit
}

func displayLanguage(language, defaultLanguage string) string {
	if code := normalizeLanguage(language); code != "" {
		return code
	}
	if code := normalizeLanguage(defaultLanguage); code != "" {
		return code
	}
	return "unknown"
}

// formatWithLanguageCode renders "(EN) Title" and leaves already prefixed text alone.
func formatWithLanguageCode(text, language string) string {
	prefix := "(" + strings.ToUpper(displayLanguage(language, "")) + ")"
	content := strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToUpper(content), prefix) {
		return content
	}
	if content == "" {
		return prefix
	}
	return prefix + " " + content
}
