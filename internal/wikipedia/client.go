package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	maxErrorBodyBytes  = 8 * 1024
	maxBodyBytes       = 4 * 1024 * 1024
	defaultSearchLimit = 10
	defaultUserAgent   = "semantic-k/1.0 (Wikipedia Q&A)"
	retryDelay         = 200 * time.Millisecond
)

var ErrArticleNotFound = errors.New("wikipedia article not found")

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("wikipedia returned %d: %s", e.StatusCode, e.Body)
}

type SearchResult struct {
	PageID  int
	Title   string
	Snippet string
}

type Page struct {
	PageID  int
	Title   string
	Extract string
	URL     string
}

type Summary struct {
	Extract      string
	URL          string
	ThumbnailURL string
}

type Options struct {
	// BaseURL may contain a {lang} placeholder, e.g. https://{lang}.wikipedia.org.
	BaseURL    string
	UserAgent  string
	MaxRetries int
}

// Client talks to a single language edition.
type Client struct {
	language   string
	baseURL    string
	userAgent  string
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type searchAPIResponse struct {
	Query struct {
		Search []struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func NewClient(language string, opts Options, httpClient *http.Client, limiter *rate.Limiter) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	language = strings.ToLower(strings.TrimSpace(language))
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = "https://{lang}.wikipedia.org"
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Client{
		language:   language,
		baseURL:    strings.TrimRight(strings.ReplaceAll(baseURL, "{lang}", language), "/"),
		userAgent:  userAgent,
		maxRetries: maxRetries,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func (c Client) Language() string {
	return c.language
}

func (c Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", trimmedQuery)
	params.Set("srlimit", strconv.Itoa(limit))
	params.Set("srprop", "snippet|titlesnippet")
	params.Set("srnamespace", "0")
	params.Set("format", "json")
	params.Set("utf8", "1")

	body, err := c.get(ctx, c.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("search %s wikipedia: %w", c.language, err)
	}

	var parsed searchAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s search response: %w", c.language, err)
	}

	results := make([]SearchResult, 0, len(parsed.Query.Search))
	for _, item := range parsed.Query.Search {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		results = append(results, SearchResult{
			PageID:  item.PageID,
			Title:   title,
			Snippet: cleanSnippet(item.Snippet),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (c Client) FullArticleByPageID(ctx context.Context, pageID int, maxChars int) (Page, error) {
	if pageID <= 0 {
		return Page{}, ErrArticleNotFound
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts|info")
	params.Set("pageids", strconv.Itoa(pageID))
	params.Set("explaintext", "1")
	if maxChars > 0 {
		params.Set("exchars", strconv.Itoa(maxChars))
	}
	params.Set("redirects", "1")
	params.Set("inprop", "url")
	params.Set("format", "json")
	params.Set("utf8", "1")

	body, err := c.get(ctx, c.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s article %d: %w", c.language, pageID, err)
	}

	var page gjson.Result
	gjson.GetBytes(body, "query.pages").ForEach(func(_, value gjson.Result) bool {
		page = value
		return false
	})
	if !page.Exists() || page.Get("missing").Exists() || page.Get("invalid").Exists() {
		return Page{}, ErrArticleNotFound
	}

	return Page{
		PageID:  int(page.Get("pageid").Int()),
		Title:   strings.TrimSpace(page.Get("title").String()),
		Extract: strings.TrimSpace(page.Get("extract").String()),
		URL:     strings.TrimSpace(page.Get("fullurl").String()),
	}, nil
}

func (c Client) SummaryByTitle(ctx context.Context, title string) (Summary, error) {
	body, err := c.getREST(ctx, "page/summary", title)
	if err != nil {
		return Summary{}, err
	}

	parsed := gjson.ParseBytes(body)
	extract := strings.TrimSpace(parsed.Get("extract").String())
	if extract == "" {
		extract = strings.TrimSpace(parsed.Get("description").String())
	}
	thumbnail := strings.TrimSpace(parsed.Get("originalimage.source").String())
	if thumbnail == "" {
		thumbnail = strings.TrimSpace(parsed.Get("thumbnail.source").String())
	}
	return Summary{
		Extract:      extract,
		URL:          strings.TrimSpace(parsed.Get("content_urls.desktop.page").String()),
		ThumbnailURL: absoluteURL(thumbnail),
	}, nil
}

func (c Client) MediaByTitle(ctx context.Context, title string) ([]string, error) {
	body, err := c.getREST(ctx, "page/media-list", title)
	if err != nil {
		return nil, err
	}

	var images []string
	seen := make(map[string]struct{})
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "image" {
			return true
		}
		source := strings.TrimSpace(item.Get("original.source").String())
		if source == "" {
			source = largestSrcset(item.Get("srcset").Array())
		}
		source = absoluteURL(source)
		if source == "" {
			return true
		}
		if _, exists := seen[source]; !exists {
			seen[source] = struct{}{}
			images = append(images, source)
		}
		return true
	})
	return images, nil
}

func (c Client) getREST(ctx context.Context, endpoint, title string) ([]byte, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return nil, ErrArticleNotFound
	}
	escaped := url.PathEscape(strings.ReplaceAll(trimmed, " ", "_"))
	body, err := c.get(ctx, c.baseURL+"/api/rest_v1/"+endpoint+"/"+escaped)
	if err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("fetch %s %s for %q: %w", c.language, endpoint, trimmed, err)
	}
	return body, nil
}

func (c Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			payload, err := c.getOnce(ctx, endpoint)
			if err != nil {
				return err
			}
			body = payload
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c Client) getOnce(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build wikipedia request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request wikipedia: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read wikipedia response: %w", err)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func largestSrcset(entries []gjson.Result) string {
	if len(entries) == 0 {
		return ""
	}
	sorted := make([]gjson.Result, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return srcsetScale(sorted[i]) > srcsetScale(sorted[j])
	})
	return strings.TrimSpace(sorted[0].Get("src").String())
}

func srcsetScale(entry gjson.Result) float64 {
	raw := strings.TrimSuffix(strings.TrimSpace(entry.Get("scale").String()), "x")
	scale, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return scale
}

func absoluteURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

// cleanSnippet drops the searchmatch markup the search API wraps around hits.
func cleanSnippet(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var out strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(out.String()), " ")
		case html.TextToken:
			out.Write(tokenizer.Text())
		}
	}
}
