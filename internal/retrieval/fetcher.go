package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gmarcinek/semantic-k/internal/wikipedia"
)

const (
	primaryExtractLimit = 6000
	contextExtractLimit = 800
	maxGalleryImages    = 12
)

// ArticleFetcher resolves content for the primary topic at full depth and for
// context topics at summary depth only.
type ArticleFetcher struct {
	primaryLanguage string
	extractLength   int
	logger          *zap.Logger
}

func NewArticleFetcher(primaryLanguage string, extractLength int, logger *zap.Logger) ArticleFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractLength <= 0 || extractLength > primaryExtractLimit {
		extractLength = primaryExtractLimit
	}
	return ArticleFetcher{
		primaryLanguage: normalizeLanguage(primaryLanguage),
		extractLength:   extractLength,
		logger:          logger,
	}
}

// BuildURL returns the canonical curid link, or "" without a pageid.
func (f ArticleFetcher) BuildURL(pageID int, language string) string {
	if pageID <= 0 {
		return ""
	}
	language = normalizeLanguage(language)
	if language == "" {
		language = f.primaryLanguage
	}
	return fmt.Sprintf("https://%s.wikipedia.org/?curid=%d", language, pageID)
}

func (f ArticleFetcher) FetchPrimary(ctx context.Context, client LanguageClient, candidate RankedCandidate) Article {
	language := f.languageOf(candidate.SearchCandidate)
	article := Article{
		Title:    candidate.Title,
		PageID:   candidate.PageID,
		Language: language,
		Images:   []string{},
	}

	page, err := f.fullArticle(ctx, client, candidate.PageID)
	if err != nil {
		if !errors.Is(err, wikipedia.ErrArticleNotFound) {
			f.logger.Warn("full article fetch failed",
				zap.String("language", language),
				zap.Int("pageid", candidate.PageID),
				zap.Error(err),
			)
		}
		summary, summaryErr := client.SummaryByTitle(ctx, candidate.Title)
		if summaryErr != nil {
			f.logger.Debug("summary fallback failed", zap.String("language", language), zap.String("title", candidate.Title), zap.Error(summaryErr))
		}
		article.Extract = firstNonEmpty(summary.Extract, candidate.Snippet)
		article.URL = firstNonEmpty(summary.URL, f.BuildURL(candidate.PageID, language))
		article.ImageURL = summary.ThumbnailURL
		article.Extract = trimToRunes(article.Extract, f.extractLength)
		f.attachGallery(ctx, client, &article)
		return article
	}

	if title := strings.TrimSpace(page.Title); title != "" {
		article.Title = title
	}
	article.Extract = trimToRunes(page.Extract, f.extractLength)
	article.URL = firstNonEmpty(page.URL, f.BuildURL(candidate.PageID, language))
	f.enrich(ctx, client, &article)
	return article
}

func (f ArticleFetcher) FetchContext(ctx context.Context, client LanguageClient, candidate RankedCandidate) Article {
	language := f.languageOf(candidate.SearchCandidate)
	summary, err := client.SummaryByTitle(ctx, candidate.Title)
	if err != nil {
		f.logger.Debug("context summary failed", zap.String("language", language), zap.String("title", candidate.Title), zap.Error(err))
	}
	return Article{
		Title:    candidate.Title,
		Extract:  trimToRunes(firstNonEmpty(summary.Extract, candidate.Snippet), contextExtractLimit),
		URL:      firstNonEmpty(summary.URL, f.BuildURL(candidate.PageID, language)),
		PageID:   candidate.PageID,
		Language: language,
		Images:   []string{},
	}
}

func (f ArticleFetcher) fullArticle(ctx context.Context, client LanguageClient, pageID int) (wikipedia.Page, error) {
	if pageID <= 0 {
		return wikipedia.Page{}, wikipedia.ErrArticleNotFound
	}
	page, err := client.FullArticleByPageID(ctx, pageID, f.extractLength)
	if err != nil {
		return wikipedia.Page{}, err
	}
	if strings.TrimSpace(page.Extract) == "" && strings.TrimSpace(page.Title) == "" {
		return wikipedia.Page{}, wikipedia.ErrArticleNotFound
	}
	return page, nil
}

// enrich attaches the thumbnail and gallery. Failures are logged and dropped.
func (f ArticleFetcher) enrich(ctx context.Context, client LanguageClient, article *Article) {
	summary, err := client.SummaryByTitle(ctx, article.Title)
	if err != nil {
		f.logger.Debug("summary enrichment failed", zap.String("language", article.Language), zap.String("title", article.Title), zap.Error(err))
	} else {
		if summary.ThumbnailURL != "" {
			article.ImageURL = summary.ThumbnailURL
		}
		if summary.URL != "" {
			article.URL = summary.URL
		}
		if strings.TrimSpace(article.Extract) == "" {
			article.Extract = trimToRunes(summary.Extract, f.extractLength)
		}
	}

	f.attachGallery(ctx, client, article)
}

// attachGallery fills at most maxGalleryImages media URLs. Failures are logged and dropped.
func (f ArticleFetcher) attachGallery(ctx context.Context, client LanguageClient, article *Article) {
	images, err := client.MediaByTitle(ctx, article.Title)
	if err != nil {
		f.logger.Debug("media enrichment failed", zap.String("language", article.Language), zap.String("title", article.Title), zap.Error(err))
		return
	}
	if len(images) > maxGalleryImages {
		images = images[:maxGalleryImages]
	}
	article.Images = append(article.Images[:0], images...)
}

func (f ArticleFetcher) languageOf(candidate SearchCandidate) string {
	if language := normalizeLanguage(candidate.Language); language != "" {
		return language
	}
	return f.primaryLanguage
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
