package retrieval

import (
	"context"
	"time"

	"github.com/gmarcinek/semantic-k/internal/wikipedia"
)

type Role string

const (
	RolePrimary    Role = "PRIMARY"
	RoleContext    Role = "CONTEXT"
	RoleIrrelevant Role = "IRRELEVANT"
)

type SearchCandidate struct {
	PageID   int    `json:"pageId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Language string `json:"language"`
}

type RankedCandidate struct {
	SearchCandidate
	RelevanceScore float64 `json:"relevanceScore"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// IntentTopic refers to a candidate by pageid (0 when unknown) or title.
type IntentTopic struct {
	PageID    int    `json:"pageId,omitempty"`
	Title     string `json:"title"`
	Language  string `json:"language,omitempty"`
	Role      Role   `json:"role"`
	Reasoning string `json:"reasoning,omitempty"`
}

type IntentResolution struct {
	Primary *IntentTopic  `json:"primary,omitempty"`
	Context []IntentTopic `json:"context"`
	Ignored []IntentTopic `json:"ignored"`
	Notes   string        `json:"notes,omitempty"`
}

type Article struct {
	Title    string   `json:"title"`
	Extract  string   `json:"extract"`
	URL      string   `json:"url"`
	PageID   int      `json:"pageId"`
	Language string   `json:"language"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Images   []string `json:"images"`
}

type Source struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	PageID         int      `json:"pageId"`
	Extract        string   `json:"extract"`
	RelevanceScore float64  `json:"relevanceScore"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	Images         []string `json:"images"`
	Language       string   `json:"language"`
	Role           Role     `json:"role"`
}

type Bundle struct {
	RetrievalID       string              `json:"retrievalId"`
	Query             string              `json:"query"`
	Sources           []Source            `json:"sources"`
	TotalResults      int                 `json:"totalResults"`
	Reranked          bool                `json:"reranked"`
	RerankingModel    string              `json:"rerankingModel,omitempty"`
	PrimaryTopic      string              `json:"primaryTopic"`
	PrimaryPageID     int                 `json:"primaryPageId"`
	PrimaryLanguage   string              `json:"primaryLanguage"`
	LanguagesUsed     []string            `json:"languagesUsed"`
	QueriesByLanguage map[string][]string `json:"queriesByLanguage"`
	ContextTopics     []IntentTopic       `json:"contextTopics"`
	IntentNotes       string              `json:"intentNotes,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CoordinatorConfig struct {
	PrimaryLanguage   string
	FallbackLanguages []string
	MaxResults        int
	PerQueryLimit     int
	ExtractLength     int
	// LanguageTimeout bounds a single language's search task; zero disables it.
	LanguageTimeout time.Duration
}

// LanguageClient is the per-language upstream surface.
type LanguageClient interface {
	Search(ctx context.Context, query string, limit int) ([]wikipedia.SearchResult, error)
	FullArticleByPageID(ctx context.Context, pageID int, maxChars int) (wikipedia.Page, error)
	SummaryByTitle(ctx context.Context, title string) (wikipedia.Summary, error)
	MediaByTitle(ctx context.Context, title string) ([]string, error)
}

type ClientFactory func(language string) LanguageClient

type PromptResponder interface {
	Respond(ctx context.Context, system, prompt string) (string, error)
}
