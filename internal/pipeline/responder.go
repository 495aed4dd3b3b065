package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/gmarcinek/semantic-k/internal/openrouter"
	"github.com/gmarcinek/semantic-k/internal/retrieval"
)

type completer interface {
	Complete(ctx context.Context, req openrouter.CompletionRequest) (string, openrouter.Usage, error)
}

type openRouterResponder struct {
	completer   completer
	modelID     string
	temperature *float64
}

// newOpenRouterResponder returns nil when there is nothing to call, so callers
// can fall back to the deterministic collaborator.
func newOpenRouterResponder(completer completer, modelID string, temperature float64) retrieval.PromptResponder {
	if completer == nil || strings.TrimSpace(modelID) == "" {
		return nil
	}
	return openRouterResponder{
		completer:   completer,
		modelID:     strings.TrimSpace(modelID),
		temperature: &temperature,
	}
}

func (r openRouterResponder) Respond(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is empty")
	}

	messages := make([]openrouter.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openrouter.Message{Role: "system", Content: system})
	}
	messages = append(messages, openrouter.Message{Role: "user", Content: prompt})

	out, _, err := r.completer.Complete(ctx, openrouter.CompletionRequest{
		Model:       r.modelID,
		Messages:    messages,
		Temperature: r.temperature,
		JSONMode:    true,
	})
	if err != nil {
		return "", err
	}
	response := strings.TrimSpace(out)
	if response == "" {
		return "", errors.New("model response was empty")
	}
	return response, nil
}
