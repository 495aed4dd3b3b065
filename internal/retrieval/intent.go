package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	notesIntentFailed      = "Intent resolution failed."
	notesIntentUnavailable = "Intent service unavailable; using top-ranked result."
	reasoningTopRanked     = "Defaulted to top-ranked result."
	reasoningAutoSelected  = "Auto-selected from top-ranked results."
)

type IntentResolver interface {
	Analyze(ctx context.Context, prompt string, candidates []RankedCandidate, history []ChatMessage) (IntentResolution, error)
}

// TopRankedResolver names the first candidate as primary and nothing else.
type TopRankedResolver struct{}

func (TopRankedResolver) Analyze(_ context.Context, _ string, candidates []RankedCandidate, _ []ChatMessage) (IntentResolution, error) {
	resolution := IntentResolution{Notes: notesIntentUnavailable}
	if len(candidates) == 0 {
		return resolution, nil
	}
	top := candidates[0]
	resolution.Primary = &IntentTopic{
		PageID:    top.PageID,
		Title:     top.Title,
		Language:  top.Language,
		Role:      RolePrimary,
		Reasoning: reasoningTopRanked,
	}
	return resolution, nil
}

type LLMIntentResolver struct {
	responder PromptResponder
}

func NewLLMIntentResolver(responder PromptResponder) LLMIntentResolver {
	return LLMIntentResolver{responder: responder}
}

func (r LLMIntentResolver) Analyze(ctx context.Context, prompt string, candidates []RankedCandidate, history []ChatMessage) (IntentResolution, error) {
	if len(candidates) == 0 {
		return IntentResolution{}, nil
	}
	if r.responder == nil {
		return IntentResolution{}, errors.New("intent responder unavailable")
	}

	raw, err := r.responder.Respond(ctx, intentSystemPrompt, buildIntentPrompt(prompt, candidates, history))
	if err != nil {
		return IntentResolution{}, fmt.Errorf("intent: %w", err)
	}
	return parseIntentResolution(raw)
}

func parseIntentResolution(raw string) (IntentResolution, error) {
	block := extractJSONBlock(raw)
	if block == "" || !gjson.Valid(block) {
		return IntentResolution{}, errors.New("intent response did not include json")
	}
	parsed := gjson.Parse(block)
	if !parsed.IsObject() {
		return IntentResolution{}, errors.New("intent response must be an object")
	}

	resolution := IntentResolution{
		Context: parseIntentTopics(parsed.Get("context"), RoleContext),
		Ignored: parseIntentTopics(parsed.Get("ignored"), RoleIrrelevant),
		Notes:   strings.TrimSpace(parsed.Get("notes").String()),
	}
	if primary := parsed.Get("primary"); primary.IsObject() {
		if topic, ok := parseIntentTopic(primary, RolePrimary); ok {
			resolution.Primary = &topic
		}
	}
	return resolution, nil
}

func parseIntentTopics(value gjson.Result, role Role) []IntentTopic {
	if !value.IsArray() {
		return nil
	}
	var topics []IntentTopic
	for _, item := range value.Array() {
		if topic, ok := parseIntentTopic(item, role); ok {
			topics = append(topics, topic)
		}
	}
	return topics
}

// parseIntentTopic forces role from the topic's position in the response.
func parseIntentTopic(item gjson.Result, role Role) (IntentTopic, bool) {
	if !item.IsObject() {
		return IntentTopic{}, false
	}
	title := strings.TrimSpace(item.Get("title").String())
	if title == "" {
		return IntentTopic{}, false
	}
	return IntentTopic{
		PageID:    coercePageID(item.Get("pageid")),
		Title:     title,
		Language:  normalizeLanguage(item.Get("language").String()),
		Role:      role,
		Reasoning: strings.TrimSpace(item.Get("reasoning").String()),
	}, true
}

func coercePageID(value gjson.Result) int {
	switch value.Type {
	case gjson.Number:
		if id := int(value.Int()); id > 0 {
			return id
		}
	case gjson.String:
		if id, err := strconv.Atoi(strings.TrimSpace(value.String())); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// matchTopic finds the ranked candidate a topic refers to: pageid first,
// then case-insensitive title. A topic language, when set, must agree.
func matchTopic(topic IntentTopic, candidates []RankedCandidate) (RankedCandidate, bool) {
	language := normalizeLanguage(topic.Language)
	if topic.PageID > 0 {
		for _, candidate := range candidates {
			if candidate.PageID != topic.PageID {
				continue
			}
			if language != "" && normalizeLanguage(candidate.Language) != language {
				continue
			}
			return candidate, true
		}
	}
	title := strings.ToLower(strings.TrimSpace(topic.Title))
	if title == "" {
		return RankedCandidate{}, false
	}
	for _, candidate := range candidates {
		if strings.ToLower(strings.TrimSpace(candidate.Title)) != title {
			continue
		}
		if language != "" && normalizeLanguage(candidate.Language) != language {
			continue
		}
		return candidate, true
	}
	return RankedCandidate{}, false
}
