package wikipedia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSearchBuildsActionQueryAndCleansSnippets(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/w/api.php", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		query := r.URL.Query()
		assert.Equal(t, "query", query.Get("action"))
		assert.Equal(t, "search", query.Get("list"))
		assert.Equal(t, "Marie Curie", query.Get("srsearch"))
		assert.Equal(t, "3", query.Get("srlimit"))
		assert.Equal(t, "snippet|titlesnippet", query.Get("srprop"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":{"search":[
			{"pageid":12,"title":"Maria Skłodowska-Curie","snippet":"<span class=\"searchmatch\">Maria</span> &amp; Pierre"},
			{"pageid":13,"title":"  ","snippet":"dropped"},
			{"pageid":14,"title":"Polon","snippet":"pierwiastek"}
		]}}`))
	}))
	defer server.Close()

	client := NewClient("pl", Options{BaseURL: server.URL, UserAgent: "test-agent"}, server.Client(), nil)
	results, err := client.Search(context.Background(), "  Marie Curie ", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, SearchResult{PageID: 12, Title: "Maria Skłodowska-Curie", Snippet: "Maria & Pierre"}, results[0])
	assert.Equal(t, 14, results[1].PageID)
}

func TestSearchSkipsBlankQuery(t *testing.T) {
	t.Parallel()

	client := NewClient("pl", Options{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	results, err := client.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewClientSubstitutesLanguageIntoBaseURL(t *testing.T) {
	t.Parallel()

	client := NewClient(" EN ", Options{}, nil, nil)
	assert.Equal(t, "en", client.Language())
	assert.Equal(t, "https://en.wikipedia.org", client.baseURL)
}

func TestFullArticleByPageID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch query.Get("pageids") {
		case "42":
			assert.Equal(t, "extracts|info", query.Get("prop"))
			assert.Equal(t, "6000", query.Get("exchars"))
			assert.Equal(t, "url", query.Get("inprop"))
			_, _ = w.Write([]byte(`{"query":{"pages":{"42":{"pageid":42,"title":"Polon","extract":"Polon to pierwiastek.","fullurl":"https://pl.wikipedia.org/wiki/Polon"}}}}`))
		default:
			_, _ = w.Write([]byte(`{"query":{"pages":{"7":{"pageid":7,"missing":""}}}}`))
		}
	}))
	defer server.Close()

	client := NewClient("pl", Options{BaseURL: server.URL}, server.Client(), nil)

	page, err := client.FullArticleByPageID(context.Background(), 42, 6000)
	require.NoError(t, err)
	assert.Equal(t, Page{PageID: 42, Title: "Polon", Extract: "Polon to pierwiastek.", URL: "https://pl.wikipedia.org/wiki/Polon"}, page)

	_, err = client.FullArticleByPageID(context.Background(), 7, 6000)
	assert.ErrorIs(t, err, ErrArticleNotFound)

	_, err = client.FullArticleByPageID(context.Background(), 0, 6000)
	assert.ErrorIs(t, err, ErrArticleNotFound)
}

func TestSummaryByTitleFallsBackToDescriptionAndThumbnail(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rest_v1/page/summary/Maria_Sk%C5%82odowska-Curie", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{
			"description":"polska fizyczka",
			"content_urls":{"desktop":{"page":"https://pl.wikipedia.org/wiki/Maria"}},
			"thumbnail":{"source":"//upload.wikimedia.org/thumb.jpg"}
		}`))
	}))
	defer server.Close()

	client := NewClient("pl", Options{BaseURL: server.URL}, server.Client(), nil)
	summary, err := client.SummaryByTitle(context.Background(), "Maria Skłodowska-Curie")
	require.NoError(t, err)

	assert.Equal(t, "polska fizyczka", summary.Extract)
	assert.Equal(t, "https://pl.wikipedia.org/wiki/Maria", summary.URL)
	assert.Equal(t, "https://upload.wikimedia.org/thumb.jpg", summary.ThumbnailURL)
}

func TestSummaryByTitleMapsNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("pl", Options{BaseURL: server.URL}, server.Client(), nil)
	_, err := client.SummaryByTitle(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrArticleNotFound)
}

func TestMediaByTitlePrefersOriginalThenLargestSrcset(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rest_v1/page/media-list/Polon", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[
			{"type":"image","original":{"source":"https://upload.wikimedia.org/a.jpg"}},
			{"type":"video","original":{"source":"https://upload.wikimedia.org/v.webm"}},
			{"type":"image","srcset":[{"src":"//upload.wikimedia.org/b-1x.jpg","scale":"1x"},{"src":"//upload.wikimedia.org/b-2x.jpg","scale":"2x"}]},
			{"type":"image","original":{"source":"https://upload.wikimedia.org/a.jpg"}}
		]}`))
	}))
	defer server.Close()

	client := NewClient("pl", Options{BaseURL: server.URL}, server.Client(), nil)
	images, err := client.MediaByTitle(context.Background(), "Polon")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://upload.wikimedia.org/a.jpg",
		"https://upload.wikimedia.org/b-2x.jpg",
	}, images)
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"query":{"search":[{"pageid":1,"title":"Ok","snippet":""}]}}`))
	}))
	defer server.Close()

	client := NewClient("en", Options{BaseURL: server.URL, MaxRetries: 2}, server.Client(), rate.NewLimiter(rate.Inf, 1))
	results, err := client.Search(context.Background(), "ok", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client := NewClient("en", Options{BaseURL: server.URL, MaxRetries: 3}, server.Client(), nil)
	_, err := client.Search(context.Background(), "ok", 5)
	require.Error(t, err)

	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad request", apiErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}
