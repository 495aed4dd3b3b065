package retrieval

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQueriesFlatListAppliesToEveryLanguage(t *testing.T) {
	got := NormalizeQueries(FlatQueries(" Marie Curie ", "", "polonium"), []string{"pl", "EN"}, "prompt")
	assert.Equal(t, map[string][]string{
		"pl": {"Marie Curie", "polonium"},
		"en": {"Marie Curie", "polonium"},
	}, got)
}

func TestNormalizeQueriesEmptyInputFallsBackToPrompt(t *testing.T) {
	got := NormalizeQueries(FlatQueries(" ", ""), []string{"pl"}, "who discovered radium")
	assert.Equal(t, map[string][]string{"pl": {"who discovered radium"}}, got)

	got = NormalizeQueries(KeyedQueries(), []string{"pl", "en"}, "prompt")
	assert.Equal(t, map[string][]string{"pl": {"prompt"}, "en": {"prompt"}}, got)
}

func TestNormalizeQueriesKeyedReusesFirstNonEmptyList(t *testing.T) {
	queries := KeyedQueries(
		LanguageQueries{Language: "en", Queries: []string{"  "}},
		LanguageQueries{Language: "DE", Queries: []string{"Curie", "Radium"}},
		LanguageQueries{Language: "fr", Queries: []string{"Polonium"}},
	)

	got := NormalizeQueries(queries, []string{"pl", "en", "de"}, "prompt")
	assert.Equal(t, map[string][]string{
		"pl": {"Curie", "Radium"},
		"en": {"Curie", "Radium"},
		"de": {"Curie", "Radium"},
		"fr": {"Polonium"},
	}, got)
}

func TestNormalizeQueriesCapsQueriesPerLanguage(t *testing.T) {
	got := NormalizeQueries(FlatQueries("1", "2", "3", "4", "5", "6", "7", "8"), []string{"pl"}, "prompt")
	assert.Len(t, got["pl"], maxQueriesPerLanguage)
}

func TestNormalizeQueriesIsIdempotent(t *testing.T) {
	queries := QueriesFromMap(map[string][]string{"en": {"a", "b"}, "de": {"c"}})
	languages := []string{"pl", "en", "de"}

	first := NormalizeQueries(queries, languages, "prompt")
	second := NormalizeQueries(queries, languages, "prompt")
	assert.Equal(t, first, second)

	first["pl"][0] = "mutated"
	third := NormalizeQueries(queries, languages, "prompt")
	assert.Equal(t, second, third)
}

func TestQueriesUnmarshalJSON(t *testing.T) {
	var flat Queries
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &flat))
	assert.False(t, flat.IsKeyed())
	assert.False(t, flat.IsEmpty())

	var keyed Queries
	require.NoError(t, json.Unmarshal([]byte(`{"en":["x"],"pl":["y"],"de":[]}`), &keyed))
	assert.True(t, keyed.IsKeyed())
	assert.Equal(t, []string{"en", "pl"}, keyed.Languages())

	var invalid Queries
	assert.Error(t, json.Unmarshal([]byte(`{"en":"x"}`), &invalid))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &invalid))
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &invalid))

	var empty Queries
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.True(t, empty.IsEmpty())
}

func TestNeedsAdditionalLanguages(t *testing.T) {
	good := strings.Repeat("long enough snippet ", 3)
	candidates := func(count, poor int) []SearchCandidate {
		out := make([]SearchCandidate, 0, count)
		for i := 0; i < count; i++ {
			snippet := good
			if i < poor {
				snippet = "short"
			}
			out = append(out, SearchCandidate{PageID: i + 1, Title: "t", Snippet: snippet})
		}
		return out
	}

	tests := []struct {
		name     string
		results  []SearchCandidate
		maxTotal int
		want     bool
	}{
		{name: "empty", results: nil, maxTotal: 10, want: true},
		{name: "enough good results", results: candidates(6, 0), maxTotal: 10, want: false},
		{name: "exactly half rounded up", results: candidates(5, 0), maxTotal: 10, want: false},
		{name: "too few results", results: candidates(4, 0), maxTotal: 10, want: true},
		{name: "odd cap rounds up", results: candidates(2, 0), maxTotal: 5, want: true},
		{name: "mostly short snippets", results: candidates(8, 6), maxTotal: 10, want: true},
		{name: "some short snippets", results: candidates(8, 5), maxTotal: 10, want: false},
		{name: "three of five short stays below share", results: candidates(5, 3), maxTotal: 10, want: false},
		{name: "four of six short stays below share", results: candidates(6, 4), maxTotal: 10, want: false},
		{name: "four of five short reaches share", results: candidates(5, 4), maxTotal: 10, want: true},
		{name: "five of six short reaches share", results: candidates(6, 5), maxTotal: 10, want: true},
		{name: "single result cap", results: candidates(1, 0), maxTotal: 1, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NeedsAdditionalLanguages(tc.results, tc.maxTotal))
		})
	}
}

func TestExtractSearchDirectives(t *testing.T) {
	text := "Let me check. [WIKIPEDIA_SEARCH: Marie Curie] and [WIKIPEDIA_SEARCH:  polonium ] [WIKIPEDIA_SEARCH: ]"
	assert.Equal(t, []string{"Marie Curie", "polonium"}, ExtractSearchDirectives(text))
	assert.Empty(t, ExtractSearchDirectives("nothing here"))
}
