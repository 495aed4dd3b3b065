package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmarcinek/semantic-k/internal/config"
	"github.com/gmarcinek/semantic-k/internal/pipeline"
	"github.com/gmarcinek/semantic-k/internal/retrieval"
)

type runCapture struct {
	cfg     config.Config
	prompt  string
	queries retrieval.Queries
	calls   int
	result  pipeline.Result
}

func (c *runCapture) run(_ context.Context, cfg config.Config, prompt string, queries retrieval.Queries) (pipeline.Result, error) {
	c.calls++
	c.cfg = cfg
	c.prompt = prompt
	c.queries = queries
	return c.result, nil
}

func execute(t *testing.T, capture *runCapture, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("WIKIPEDIA_LANGUAGE", "")
	t.Setenv("WIKIPEDIA_FALLBACK_LANGUAGES", "")
	t.Setenv("TRANSLATION_TARGET_LANGUAGE", "")

	var out bytes.Buffer
	cmd := newRootCmd(capture.run)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearchAppliesFlags(t *testing.T) {
	capture := &runCapture{result: pipeline.Result{Decision: retrieval.SelectStrategy(nil, retrieval.DefaultThresholds())}}

	out, err := execute(t, capture, "search", "--lang", "EN", "--fallback", "de,fr,en", "--max", "3", "--no-rerank", "--no-intent", "-q", "Marie Curie", "Curie")
	require.NoError(t, err)
	require.Equal(t, 1, capture.calls)

	assert.Equal(t, "en", capture.cfg.PrimaryLanguage)
	assert.Equal(t, []string{"de", "fr"}, capture.cfg.FallbackLanguages)
	assert.Equal(t, 3, capture.cfg.MaxResults)
	assert.Equal(t, 3, capture.cfg.PerQueryLimit)
	assert.Equal(t, "en", capture.cfg.TranslationTarget)
	assert.False(t, capture.cfg.RerankEnabled)
	assert.False(t, capture.cfg.IntentEnabled)
	assert.Equal(t, "Curie", capture.prompt)
	assert.False(t, capture.queries.IsKeyed())
	assert.False(t, capture.queries.IsEmpty())

	var printed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Contains(t, printed, "decision")
}

func TestSearchKeyedQueries(t *testing.T) {
	capture := &runCapture{}

	_, err := execute(t, capture, "search", "--no-fallback", "--for", "pl=Maria Skłodowska", "--for", "EN=Marie Curie", "--for", "pl=Curie")
	require.NoError(t, err)
	assert.Empty(t, capture.cfg.FallbackLanguages)
	assert.True(t, capture.queries.IsKeyed())
	assert.Equal(t, []string{"pl", "en"}, capture.queries.Languages())
}

func TestSearchContextOnly(t *testing.T) {
	capture := &runCapture{result: pipeline.Result{Context: "Article 1: (PL) Kraków\n"}}

	out, err := execute(t, capture, "search", "--context-only", "Kraków")
	require.NoError(t, err)
	assert.Equal(t, "Article 1: (PL) Kraków\n", out)
}

func TestSearchRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "nothing to search", args: []string{"search"}},
		{name: "mixed query forms", args: []string{"search", "-q", "a", "--for", "pl=b"}},
		{name: "malformed for", args: []string{"search", "--for", "Curie"}},
		{name: "too many args", args: []string{"search", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &runCapture{}
			_, err := execute(t, capture, tt.args...)
			assert.Error(t, err)
			assert.Zero(t, capture.calls)
		})
	}
}
