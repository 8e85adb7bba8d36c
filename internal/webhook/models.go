package webhook

import (
	"fmt"
	"slices"
)

// Models lists the models each provider accepts, first entry is the default.
var Models = map[string][]string{
	"openai": {"gpt-5.2", "gpt-5.1", "gpt-5-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-4o", "gpt-4o-mini"},
	"gemini": {"gemini-2.5-pro", "gemini-3-flash-preview", "gemini-3-pro-preview"},
	"grok":   {"grok-4", "grok-4-fast"},
}

func ValidateModel(provider, model string) error {
	models, ok := Models[provider]
	if !ok {
		return fmt.Errorf("webhook: unknown model provider %q", provider)
	}
	if !slices.Contains(models, model) {
		return fmt.Errorf("webhook: model %q is not offered by %s", model, provider)
	}
	return nil
}

// DefaultModel returns the first model of provider, or "" when unknown.
func DefaultModel(provider string) string {
	if models := Models[provider]; len(models) > 0 {
		return models[0]
	}
	return ""
}
