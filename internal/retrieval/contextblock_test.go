package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildContextText(t *testing.T) {
	articles := []Article{
		{Title: "(PL) Kraków", Extract: "Miasto", URL: "https://pl.wikipedia.org/?curid=1", Language: "pl", ImageURL: "https://img/krakow.jpg"},
		{Title: "", Extract: "Context", URL: "https://en.wikipedia.org/?curid=2"},
	}

	want := "Article 1: (PL) Kraków\n" +
		"Language: pl\n" +
		"URL: https://pl.wikipedia.org/?curid=1\n" +
		"Content: Miasto\n" +
		"Image: https://img/krakow.jpg\n" +
		"\n" +
		"Article 2: Unknown\n" +
		"Language: en\n" +
		"URL: https://en.wikipedia.org/?curid=2\n" +
		"Content: Context\n"
	assert.Equal(t, want, BuildContextText(articles, "en"))
	assert.Empty(t, BuildContextText(nil, "pl"))
}
