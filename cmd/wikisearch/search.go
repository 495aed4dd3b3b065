package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmarcinek/semantic-k/internal/config"
	"github.com/gmarcinek/semantic-k/internal/logging"
	"github.com/gmarcinek/semantic-k/internal/pipeline"
	"github.com/gmarcinek/semantic-k/internal/retrieval"
)

type runFunc func(ctx context.Context, cfg config.Config, prompt string, queries retrieval.Queries) (pipeline.Result, error)

type searchOptions struct {
	configFile  string
	lang        string
	fallback    []string
	noFallback  bool
	max         int
	queries     []string
	langQueries []string
	noRerank    bool
	noIntent    bool
	noRefine    bool
	translate   string
	contextOnly bool
	logLevel    string
}

func newRootCmd(run runFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "wikisearch",
		Short:         "Multilingual Wikipedia retrieval from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSearchCmd(run))
	return root
}

func newSearchCmd(run runFunc) *cobra.Command {
	opts := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [prompt]",
		Short: "Retrieve a primary article and supporting context for a prompt",
		Long: `search runs the same retrieval pipeline as the API: queries per language,
fallback languages when the primary edition is thin, reranking, intent
resolution and optional translation. The bundle is printed as JSON.

Example usage:
  wikisearch search "Maria Curie"
  wikisearch search --lang en --fallback de,fr "Marie Curie Nobel"
  wikisearch search --for pl="Maria Skłodowska" --for en="Marie Curie" "Curie"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) == 1 {
				prompt = strings.TrimSpace(args[0])
			}
			queries, err := opts.buildQueries()
			if err != nil {
				return err
			}
			if prompt == "" && queries.IsEmpty() {
				return errors.New("a prompt or at least one query is required")
			}

			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			result, err := run(cmd.Context(), cfg, prompt, queries)
			if err != nil {
				return err
			}
			if opts.contextOnly {
				_, err = fmt.Fprint(cmd.OutOrStdout(), result.Context)
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	flags.StringVar(&opts.lang, "lang", "", "primary Wikipedia language")
	flags.StringSliceVar(&opts.fallback, "fallback", nil, "fallback languages in priority order")
	flags.BoolVar(&opts.noFallback, "no-fallback", false, "search the primary language only")
	flags.IntVar(&opts.max, "max", 0, "maximum articles in the bundle (1-10)")
	flags.StringArrayVarP(&opts.queries, "query", "q", nil, "query applied to every language (repeatable)")
	flags.StringArrayVar(&opts.langQueries, "for", nil, "language-specific query as lang=text (repeatable)")
	flags.BoolVar(&opts.noRerank, "no-rerank", false, "keep search order instead of LLM reranking")
	flags.BoolVar(&opts.noIntent, "no-intent", false, "pick the top-ranked article as primary")
	flags.BoolVar(&opts.noRefine, "no-refine", false, "use the prompt as the query without LLM refinement")
	flags.StringVar(&opts.translate, "translate", "", "translate titles and extracts into this language")
	flags.BoolVar(&opts.contextOnly, "context-only", false, "print only the rendered context block")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level written to stderr")
	return cmd
}

func (o searchOptions) buildQueries() (retrieval.Queries, error) {
	if len(o.queries) > 0 && len(o.langQueries) > 0 {
		return retrieval.Queries{}, errors.New("--query and --for cannot be combined")
	}
	if len(o.langQueries) == 0 {
		return retrieval.FlatQueries(o.queries...), nil
	}

	var entries []retrieval.LanguageQueries
	index := make(map[string]int)
	for _, raw := range o.langQueries {
		language, text, ok := strings.Cut(raw, "=")
		language = strings.ToLower(strings.TrimSpace(language))
		if !ok || language == "" || strings.TrimSpace(text) == "" {
			return retrieval.Queries{}, fmt.Errorf("--for expects lang=text, got %q", raw)
		}
		if i, seen := index[language]; seen {
			entries[i].Queries = append(entries[i].Queries, text)
			continue
		}
		index[language] = len(entries)
		entries = append(entries, retrieval.LanguageQueries{Language: language, Queries: []string{text}})
	}
	return retrieval.KeyedQueries(entries...), nil
}

func (o searchOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	return cfg.Override(func(c *config.Config) {
		if flags.Changed("lang") {
			if c.TranslationTarget == c.PrimaryLanguage {
				c.TranslationTarget = ""
			}
			c.PrimaryLanguage = o.lang
		}
		if flags.Changed("fallback") {
			c.FallbackLanguages = o.fallback
		}
		if o.noFallback {
			c.FallbackLanguages = nil
		}
		if flags.Changed("max") {
			c.MaxResults = o.max
			c.PerQueryLimit = 0
		}
		if o.noRerank {
			c.RerankEnabled = false
		}
		if o.noIntent {
			c.IntentEnabled = false
		}
		if o.noRefine {
			c.QueryRefinerEnabled = false
		}
		if o.translate != "" {
			c.TranslationEnabled = true
			c.TranslationTarget = strings.ToLower(o.translate)
		}
		if o.logLevel != "" {
			c.LogLevel = o.logLevel
		}
	})
}

func runPipeline(ctx context.Context, cfg config.Config, prompt string, queries retrieval.Queries) (pipeline.Result, error) {
	level := cfg.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	logger, err := logging.New(level, "production")
	if err != nil {
		return pipeline.Result{}, err
	}
	defer func() { _ = logger.Sync() }()

	return pipeline.Build(cfg, logger, nil).Run(ctx, prompt, queries, nil)
}
