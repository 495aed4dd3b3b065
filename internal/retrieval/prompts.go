package retrieval

import (
	"fmt"
	"strings"
)

const (
	rerankSystemPrompt    = "You evaluate Wikipedia search result relevance. Respond only with a valid JSON object matching the requested fields."
	intentSystemPrompt    = "You decide which Wikipedia articles answer a user's question. Respond only with valid JSON that follows the provided schema."
	translateSystemPrompt = "You translate Wikipedia text precisely, without commentary. Respond only with valid JSON."
	refinerSystemPrompt   = "You craft concise, effective Wikipedia search queries. Respond only with valid JSON."

	promptSnippetRunes  = 280
	historyMessageRunes = 160
	historyMessages     = 3
)

func buildRerankPrompt(query string, candidates []SearchCandidate) string {
	var b strings.Builder
	b.WriteString("User query:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nSearch results:\n")
	for i, candidate := range candidates {
		b.WriteString(fmt.Sprintf("- id=%d | language=%s | pageid=%d | title=%s\n", i+1, candidate.Language, candidate.PageID, candidate.Title))
		if snippet := strings.TrimSpace(candidate.Snippet); snippet != "" {
			b.WriteString("  snippet: ")
			b.WriteString(trimToRunes(snippet, promptSnippetRunes))
			b.WriteString("\n")
		}
	}
	b.WriteString("\nScore every result from 0.0 (irrelevant) to 1.0 (answers the query directly).\n")
	b.WriteString("Weigh title match, snippet relevance, direct versus tangential information, and topic specificity.\n")
	b.WriteString("Schema: {\"ranked_results\":[{\"id\":number,\"relevance_score\":number,\"reasoning\":string}]}\n")
	b.WriteString("Include every id listed above exactly once.")
	return b.String()
}

func buildIntentPrompt(prompt string, candidates []RankedCandidate, history []ChatMessage) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n")

	if recent := recentHistory(history, historyMessages); len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, message := range recent {
			b.WriteString(fmt.Sprintf("- %s: %s\n", message.Role, trimToRunes(strings.TrimSpace(message.Content), historyMessageRunes)))
		}
	}

	b.WriteString("\nCandidates:\n")
	for _, candidate := range candidates {
		b.WriteString(fmt.Sprintf("- pageid=%d | language=%s | title=%s | score=%.2f\n", candidate.PageID, candidate.Language, candidate.Title, candidate.RelevanceScore))
		if snippet := strings.TrimSpace(candidate.Snippet); snippet != "" {
			b.WriteString("  snippet: ")
			b.WriteString(trimToRunes(snippet, promptSnippetRunes))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- primary is the single article the question is about, or null when none fits.\n")
	b.WriteString("- context lists articles that add useful background.\n")
	b.WriteString("- ignored lists articles unrelated to the question.\n")
	b.WriteString("- Refer to candidates by the pageid and title shown above.\n")
	b.WriteString("Schema: {\"primary\":{\"pageid\":number,\"title\":string,\"language\":string,\"reasoning\":string}|null,")
	b.WriteString("\"context\":[{\"pageid\":number,\"title\":string,\"language\":string,\"reasoning\":string}],")
	b.WriteString("\"ignored\":[{\"pageid\":number,\"title\":string,\"language\":string,\"reasoning\":string}],\"notes\":string}")
	return b.String()
}

func buildTranslatePrompt(title, extract, sourceLanguage, targetLanguage string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Translate the following Wikipedia content from %s to %s.\n", strings.ToUpper(sourceLanguage), strings.ToUpper(targetLanguage)))
	b.WriteString("Schema: {\"title\":string,\"extract\":string}\n\n")
	b.WriteString("Title: ")
	b.WriteString(orPlaceholder(title))
	b.WriteString("\nExtract: ")
	b.WriteString(orPlaceholder(extract))
	return b.String()
}

func buildRefinePrompt(prompt string, history []ChatMessage, languages []string, perLanguage int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Propose up to %d distinct Wikipedia search queries for each language: %s.\n", perLanguage, strings.Join(languages, ", ")))
	b.WriteString("Write each language's queries in that language. Favor disambiguated article titles, synonyms, and the names of people, places, and events.\n")
	b.WriteString("\nUser prompt:\n")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n")
	if recent := recentHistory(history, historyMessages); len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, message := range recent {
			b.WriteString(fmt.Sprintf("- %s: %s\n", message.Role, trimToRunes(strings.TrimSpace(message.Content), 120)))
		}
	}
	b.WriteString("\nSchema: {\"queries_by_language\":{\"<language code>\":[string]}}")
	return b.String()
}

func recentHistory(history []ChatMessage, limit int) []ChatMessage {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func orPlaceholder(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "[none]"
}
