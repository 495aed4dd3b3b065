package retrieval

import (
	"bytes"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	maxQueriesPerLanguage = 6
	maxQueriesSearched    = 3
	poorSnippetChars      = 40
)

var searchDirectivePattern = regexp.MustCompile(`\[WIKIPEDIA_SEARCH:\s*([^\]]+)\]`)

type LanguageQueries struct {
	Language string   `json:"language"`
	Queries  []string `json:"queries"`
}

// Queries is either one flat list applied to every language or an ordered
// per-language list. The zero value is an empty flat list.
type Queries struct {
	flat  []string
	keyed []LanguageQueries
	isMap bool
}

func FlatQueries(queries ...string) Queries {
	return Queries{flat: append([]string(nil), queries...)}
}

func KeyedQueries(entries ...LanguageQueries) Queries {
	return Queries{keyed: append([]LanguageQueries(nil), entries...), isMap: true}
}

// QueriesFromMap orders languages alphabetically so the result stays deterministic.
func QueriesFromMap(byLanguage map[string][]string) Queries {
	languages := make([]string, 0, len(byLanguage))
	for language := range byLanguage {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	entries := make([]LanguageQueries, 0, len(languages))
	for _, language := range languages {
		entries = append(entries, LanguageQueries{Language: language, Queries: byLanguage[language]})
	}
	return KeyedQueries(entries...)
}

func (q Queries) IsKeyed() bool {
	return q.isMap
}

func (q Queries) IsEmpty() bool {
	if !q.isMap {
		return len(cleanQueries(q.flat)) == 0
	}
	for _, entry := range q.keyed {
		if normalizeLanguage(entry.Language) != "" && len(cleanQueries(entry.Queries)) > 0 {
			return false
		}
	}
	return true
}

// Languages lists the keyed languages carrying at least one query, in input order.
func (q Queries) Languages() []string {
	if !q.isMap {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, entry := range q.keyed {
		language := normalizeLanguage(entry.Language)
		if language == "" || len(cleanQueries(entry.Queries)) == 0 {
			continue
		}
		if _, ok := seen[language]; ok {
			continue
		}
		seen[language] = struct{}{}
		out = append(out, language)
	}
	return out
}

// UnmarshalJSON accepts a JSON array of strings or an object of language to strings.
func (q *Queries) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*q = Queries{}
		return nil
	}
	if !gjson.ValidBytes(trimmed) {
		return errors.New("queries must be valid JSON")
	}

	parsed := gjson.ParseBytes(trimmed)
	switch {
	case parsed.IsArray():
		flat := make([]string, 0, len(parsed.Array()))
		for _, item := range parsed.Array() {
			if item.Type != gjson.String {
				return errors.New("queries list must contain only strings")
			}
			flat = append(flat, item.String())
		}
		*q = FlatQueries(flat...)
	case parsed.IsObject():
		var entries []LanguageQueries
		var err error
		parsed.ForEach(func(key, value gjson.Result) bool {
			if !value.IsArray() {
				err = errors.New("queries by language must map to lists of strings")
				return false
			}
			entry := LanguageQueries{Language: key.String()}
			for _, item := range value.Array() {
				if item.Type != gjson.String {
					err = errors.New("queries by language must map to lists of strings")
					return false
				}
				entry.Queries = append(entry.Queries, item.String())
			}
			entries = append(entries, entry)
			return true
		})
		if err != nil {
			return err
		}
		*q = KeyedQueries(entries...)
	default:
		return errors.New("queries must be a list or an object")
	}
	return nil
}

// NormalizeQueries resolves query input into one list per language, at most six each.
// Every language in languages gets an entry; keyed-only languages are kept too.
func NormalizeQueries(queries Queries, languages []string, fallbackPrompt string) map[string][]string {
	normalized := make(map[string][]string, len(languages))

	if !queries.isMap {
		cleaned := cleanQueries(queries.flat)
		if len(cleaned) == 0 {
			cleaned = []string{fallbackPrompt}
		}
		for _, language := range languages {
			if code := normalizeLanguage(language); code != "" {
				normalized[code] = cloneStrings(cleaned)
			}
		}
		return normalized
	}

	cleanedInput := make(map[string][]string, len(queries.keyed))
	var inputOrder []string
	var fallbackList []string
	for _, entry := range queries.keyed {
		code := normalizeLanguage(entry.Language)
		if code == "" {
			continue
		}
		cleaned := cleanQueries(entry.Queries)
		if len(cleaned) == 0 {
			continue
		}
		if _, exists := cleanedInput[code]; exists {
			continue
		}
		cleanedInput[code] = cleaned
		inputOrder = append(inputOrder, code)
		if fallbackList == nil {
			fallbackList = cleaned
		}
	}
	if fallbackList == nil {
		fallbackList = []string{fallbackPrompt}
	}

	for _, language := range languages {
		code := normalizeLanguage(language)
		if code == "" {
			continue
		}
		if list, ok := cleanedInput[code]; ok {
			normalized[code] = cloneStrings(list)
			continue
		}
		normalized[code] = cloneStrings(fallbackList)
	}
	for _, code := range inputOrder {
		if _, ok := normalized[code]; !ok {
			normalized[code] = cloneStrings(cleanedInput[code])
		}
	}
	return normalized
}

// NeedsAdditionalLanguages reports whether primary-language hits are too few
// or too thin to answer from alone.
func NeedsAdditionalLanguages(primaryResults []SearchCandidate, maxTotal int) bool {
	if len(primaryResults) == 0 {
		return true
	}
	threshold := max(1, (maxTotal+1)/2)
	if len(primaryResults) < threshold {
		return true
	}
	return isLowQuality(primaryResults)
}

func isLowQuality(results []SearchCandidate) bool {
	if len(results) == 0 {
		return true
	}
	poor := 0
	for _, result := range results {
		if len([]rune(strings.TrimSpace(result.Snippet))) < poorSnippetChars {
			poor++
		}
	}
	// At least 75% short snippets, without rounding the share down.
	return poor*4 >= len(results)*3
}

// ExtractSearchDirectives pulls queries out of [WIKIPEDIA_SEARCH: ...] markers.
func ExtractSearchDirectives(text string) []string {
	matches := searchDirectivePattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if query := strings.TrimSpace(match[1]); query != "" {
			out = append(out, query)
		}
	}
	return out
}

func cleanQueries(values []string) []string {
	out := make([]string, 0, min(len(values), maxQueriesPerLanguage))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if len(out) >= maxQueriesPerLanguage {
			break
		}
	}
	return out
}

func cloneStrings(values []string) []string {
	return append([]string(nil), values...)
}
