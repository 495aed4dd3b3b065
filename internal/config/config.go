package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                    = "8080"
	defaultDatabaseURL             = "file:semantic-k.db"
	defaultOpenRouterBaseURL       = "https://openrouter.ai/api/v1"
	defaultModel                   = "openai/gpt-4.1-mini"
	defaultPrimaryLanguage         = "pl"
	defaultFallbackLanguages       = "en,de,es,fr"
	defaultMaxResults              = 10
	defaultExtractLength           = 6000
	defaultWikipediaBaseURL        = "https://{lang}.wikipedia.org"
	defaultWikipediaUserAgent      = "semantic-k/1.0 (Wikipedia Q&A)"
	defaultRequestsPerSecond       = 20
	defaultWikipediaMaxRetries     = 2
	defaultWikipediaHTTPTimeoutSec = 10
	defaultLanguageTimeoutSecs     = 8
	defaultRetrievalTimeoutSecs    = 45
	defaultTranslationMaxChars     = 1600
	defaultPerfectThreshold        = 0.98
	defaultAnswerThreshold         = 0.8

	maxResultsCeiling = 10
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	DatabaseURL       string
	DatabaseAuthToken string

	OpenRouterAPIKey       string
	OpenRouterBaseURL      string
	OpenRouterDefaultModel string

	PrimaryLanguage   string
	FallbackLanguages []string
	MaxResults        int
	PerQueryLimit     int
	ExtractLength     int

	WikipediaBaseURL           string
	WikipediaUserAgent         string
	WikipediaRequestsPerSecond int
	WikipediaMaxRetries        int
	WikipediaHTTPTimeout       time.Duration
	LanguageTimeout            time.Duration
	RetrievalTimeout           time.Duration

	RerankEnabled       bool
	RerankModel         string
	IntentEnabled       bool
	IntentModel         string
	QueryRefinerEnabled bool
	QueryRefinerModel   string
	TranslationEnabled  bool
	TranslationTarget   string
	TranslationModel    string
	TranslationMaxChars int
	PerfectThreshold    float64
	AnswerThreshold     float64
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// MaxTotal is the global source cap, always within [1,10].
func (c Config) MaxTotal() int {
	return ClampMaxResults(c.MaxResults)
}

// Languages returns the primary language followed by the fallbacks.
func (c Config) Languages() []string {
	out := make([]string, 0, len(c.FallbackLanguages)+1)
	out = append(out, c.PrimaryLanguage)
	return append(out, c.FallbackLanguages...)
}

func ClampMaxResults(value int) int {
	if value < 1 {
		return 1
	}
	if value > maxResultsCeiling {
		return maxResultsCeiling
	}
	return value
}

func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOrDefault("PORT", cfg.Port)
	cfg.Environment = envOrDefault("APP_ENV", cfg.Environment)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseAuthToken = envOrDefault("DATABASE_AUTH_TOKEN", cfg.DatabaseAuthToken)
	cfg.OpenRouterAPIKey = envOrDefault("OPENROUTER_API_KEY", cfg.OpenRouterAPIKey)
	cfg.OpenRouterBaseURL = envOrDefault("OPENROUTER_BASE_URL", cfg.OpenRouterBaseURL)
	cfg.OpenRouterDefaultModel = envOrDefault("OPENROUTER_DEFAULT_MODEL", cfg.OpenRouterDefaultModel)

	cfg.PrimaryLanguage = strings.ToLower(envOrDefault("WIKIPEDIA_LANGUAGE", cfg.PrimaryLanguage))
	if raw := strings.TrimSpace(os.Getenv("WIKIPEDIA_FALLBACK_LANGUAGES")); raw != "" {
		cfg.FallbackLanguages = parseList(raw)
	}
	cfg.MaxResults = intOrDefault("WIKIPEDIA_MAX_RESULTS", cfg.MaxResults)
	cfg.PerQueryLimit = intOrDefault("WIKIPEDIA_PER_QUERY_LIMIT", cfg.PerQueryLimit)
	cfg.ExtractLength = intOrDefault("WIKIPEDIA_EXTRACT_LENGTH", cfg.ExtractLength)
	cfg.WikipediaBaseURL = envOrDefault("WIKIPEDIA_BASE_URL", cfg.WikipediaBaseURL)
	cfg.WikipediaUserAgent = envOrDefault("WIKIPEDIA_USER_AGENT", cfg.WikipediaUserAgent)
	cfg.WikipediaRequestsPerSecond = intOrDefault("WIKIPEDIA_REQUESTS_PER_SECOND", cfg.WikipediaRequestsPerSecond)
	cfg.WikipediaMaxRetries = intOrDefault("WIKIPEDIA_MAX_RETRIES", cfg.WikipediaMaxRetries)
	cfg.WikipediaHTTPTimeout = secondsOrDefault("WIKIPEDIA_HTTP_TIMEOUT_SECONDS", cfg.WikipediaHTTPTimeout)
	cfg.LanguageTimeout = secondsOrDefault("WIKIPEDIA_LANGUAGE_TIMEOUT_SECONDS", cfg.LanguageTimeout)
	cfg.RetrievalTimeout = secondsOrDefault("RETRIEVAL_TIMEOUT_SECONDS", cfg.RetrievalTimeout)

	cfg.RerankEnabled = boolOrDefault("RERANK_ENABLED", cfg.RerankEnabled)
	cfg.RerankModel = envOrDefault("RERANK_MODEL", cfg.RerankModel)
	cfg.IntentEnabled = boolOrDefault("INTENT_ENABLED", cfg.IntentEnabled)
	cfg.IntentModel = envOrDefault("INTENT_MODEL", cfg.IntentModel)
	cfg.QueryRefinerEnabled = boolOrDefault("QUERY_REFINER_ENABLED", cfg.QueryRefinerEnabled)
	cfg.QueryRefinerModel = envOrDefault("QUERY_REFINER_MODEL", cfg.QueryRefinerModel)
	cfg.TranslationEnabled = boolOrDefault("TRANSLATION_ENABLED", cfg.TranslationEnabled)
	cfg.TranslationTarget = strings.ToLower(envOrDefault("TRANSLATION_TARGET_LANGUAGE", cfg.TranslationTarget))
	cfg.TranslationModel = envOrDefault("TRANSLATION_MODEL", cfg.TranslationModel)
	cfg.TranslationMaxChars = intOrDefault("TRANSLATION_MAX_CHARS", cfg.TranslationMaxChars)
	cfg.PerfectThreshold = floatOrDefault("THRESHOLD_PERFECT", cfg.PerfectThreshold)
	cfg.AnswerThreshold = floatOrDefault("THRESHOLD_ANSWER", cfg.AnswerThreshold)

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ",")))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Port:                       defaultPort,
		Environment:                "development",
		LogLevel:                   "info",
		AllowedOrigins:             []string{"http://localhost:5173"},
		DatabaseURL:                defaultDatabaseURL,
		OpenRouterBaseURL:          defaultOpenRouterBaseURL,
		OpenRouterDefaultModel:     defaultModel,
		PrimaryLanguage:            defaultPrimaryLanguage,
		FallbackLanguages:          parseList(defaultFallbackLanguages),
		MaxResults:                 defaultMaxResults,
		ExtractLength:              defaultExtractLength,
		WikipediaBaseURL:           defaultWikipediaBaseURL,
		WikipediaUserAgent:         defaultWikipediaUserAgent,
		WikipediaRequestsPerSecond: defaultRequestsPerSecond,
		WikipediaMaxRetries:        defaultWikipediaMaxRetries,
		WikipediaHTTPTimeout:       defaultWikipediaHTTPTimeoutSec * time.Second,
		LanguageTimeout:            defaultLanguageTimeoutSecs * time.Second,
		RetrievalTimeout:           defaultRetrievalTimeoutSecs * time.Second,
		RerankEnabled:              true,
		IntentEnabled:              true,
		QueryRefinerEnabled:        true,
		TranslationMaxChars:        defaultTranslationMaxChars,
		PerfectThreshold:           defaultPerfectThreshold,
		AnswerThreshold:            defaultAnswerThreshold,
	}
}

func (c *Config) normalize() error {
	c.PrimaryLanguage = strings.ToLower(strings.TrimSpace(c.PrimaryLanguage))
	if c.PrimaryLanguage == "" {
		return errors.New("WIKIPEDIA_LANGUAGE must not be empty")
	}
	c.FallbackLanguages = normalizeFallbacks(c.PrimaryLanguage, c.FallbackLanguages)

	if c.PerQueryLimit <= 0 {
		c.PerQueryLimit = c.MaxTotal()
	}
	if c.ExtractLength <= 0 {
		c.ExtractLength = defaultExtractLength
	}
	if c.TranslationMaxChars <= 0 {
		c.TranslationMaxChars = defaultTranslationMaxChars
	}
	if c.TranslationTarget == "" {
		c.TranslationTarget = c.PrimaryLanguage
	}
	for _, model := range []*string{&c.RerankModel, &c.IntentModel, &c.QueryRefinerModel, &c.TranslationModel} {
		if strings.TrimSpace(*model) == "" {
			*model = c.OpenRouterDefaultModel
		}
	}

	if c.AnswerThreshold < 0 || c.PerfectThreshold > 1 {
		return errors.New("relevance thresholds must be within [0,1]")
	}
	if c.AnswerThreshold > c.PerfectThreshold {
		return errors.New("THRESHOLD_ANSWER must not exceed THRESHOLD_PERFECT")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(c.DatabaseURL, "libsql://") && strings.TrimSpace(c.DatabaseAuthToken) == "" {
		return errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}
	return nil
}

func normalizeFallbacks(primary string, languages []string) []string {
	out := make([]string, 0, len(languages))
	seen := map[string]struct{}{primary: {}}
	for _, language := range languages {
		code := strings.ToLower(strings.TrimSpace(language))
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

type fileConfig struct {
	Wikipedia struct {
		Language          string   `yaml:"language"`
		FallbackLanguages []string `yaml:"fallback_languages"`
		BaseURL           string   `yaml:"base_url"`
		Search            struct {
			MaxResults             int `yaml:"max_results"`
			PerQueryLimit          int `yaml:"per_query_limit"`
			ExtractLength          int `yaml:"extract_length"`
			LanguageTimeoutSeconds int `yaml:"language_timeout_seconds"`
			CallTimeoutSeconds     int `yaml:"call_timeout_seconds"`
		} `yaml:"search"`
		Reranking   toggleSection `yaml:"reranking"`
		Intent      toggleSection `yaml:"intent"`
		QueryRefine toggleSection `yaml:"query_refiner"`
		Translation struct {
			toggleSection  `yaml:",inline"`
			TargetLanguage string `yaml:"target_language"`
			MaxChars       int    `yaml:"max_chars"`
		} `yaml:"translation"`
		Thresholds struct {
			Perfect *float64 `yaml:"perfect"`
			Answer  *float64 `yaml:"answer"`
		} `yaml:"thresholds"`
	} `yaml:"wikipedia"`
}

type toggleSection struct {
	Enabled *bool  `yaml:"enabled"`
	Model   string `yaml:"model"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	wiki := file.Wikipedia
	if wiki.Language != "" {
		cfg.PrimaryLanguage = wiki.Language
	}
	if len(wiki.FallbackLanguages) > 0 {
		cfg.FallbackLanguages = wiki.FallbackLanguages
	}
	if wiki.BaseURL != "" {
		cfg.WikipediaBaseURL = wiki.BaseURL
	}
	if wiki.Search.MaxResults != 0 {
		cfg.MaxResults = wiki.Search.MaxResults
	}
	if wiki.Search.PerQueryLimit != 0 {
		cfg.PerQueryLimit = wiki.Search.PerQueryLimit
	}
	if wiki.Search.ExtractLength != 0 {
		cfg.ExtractLength = wiki.Search.ExtractLength
	}
	if wiki.Search.LanguageTimeoutSeconds > 0 {
		cfg.LanguageTimeout = time.Duration(wiki.Search.LanguageTimeoutSeconds) * time.Second
	}
	if wiki.Search.CallTimeoutSeconds > 0 {
		cfg.RetrievalTimeout = time.Duration(wiki.Search.CallTimeoutSeconds) * time.Second
	}
	wiki.Reranking.apply(&cfg.RerankEnabled, &cfg.RerankModel)
	wiki.Intent.apply(&cfg.IntentEnabled, &cfg.IntentModel)
	wiki.QueryRefine.apply(&cfg.QueryRefinerEnabled, &cfg.QueryRefinerModel)
	wiki.Translation.apply(&cfg.TranslationEnabled, &cfg.TranslationModel)
	if wiki.Translation.TargetLanguage != "" {
		cfg.TranslationTarget = wiki.Translation.TargetLanguage
	}
	if wiki.Translation.MaxChars > 0 {
		cfg.TranslationMaxChars = wiki.Translation.MaxChars
	}
	if wiki.Thresholds.Perfect != nil {
		cfg.PerfectThreshold = *wiki.Thresholds.Perfect
	}
	if wiki.Thresholds.Answer != nil {
		cfg.AnswerThreshold = *wiki.Thresholds.Answer
	}
	return nil
}

func (s toggleSection) apply(enabled *bool, model *string) {
	if s.Enabled != nil {
		*enabled = *s.Enabled
	}
	if strings.TrimSpace(s.Model) != "" {
		*model = strings.TrimSpace(s.Model)
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func secondsOrDefault(key string, fallback time.Duration) time.Duration {
	seconds := intOrDefault(key, -1)
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Override applies caller-side settings, such as command-line flags, and
// normalizes the result again.
func (c Config) Override(apply func(*Config)) (Config, error) {
	apply(&c)
	if err := c.normalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}
