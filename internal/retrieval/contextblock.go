package retrieval

import (
	"fmt"
	"strings"
)

// BuildContextText renders one paragraph per article in the given order.
func BuildContextText(articles []Article, defaultLanguage string) string {
	blocks := make([]string, 0, len(articles))
	for i, article := range articles {
		title := article.Title
		if strings.TrimSpace(title) == "" {
			title = "Unknown"
		}
		language := displayLanguage(article.Language, defaultLanguage)

		var b strings.Builder
		b.WriteString(fmt.Sprintf("Article %d: %s\n", i+1, title))
		b.WriteString(fmt.Sprintf("Language: %s\n", language))
		b.WriteString(fmt.Sprintf("URL: %s\n", article.URL))
		b.WriteString(fmt.Sprintf("Content: %s\n", article.Extract))
		if article.ImageURL != "" {
			b.WriteString(fmt.Sprintf("Image: %s\n", article.ImageURL))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}
