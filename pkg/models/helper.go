package models

import (
	"context"
	"fmt"
)

// NewProvider builds a Generator by provider name.
func NewProvider(ctx context.Context, provider, model, systemPrompt string) (Generator, error) {
	switch provider {
	case "openai":
		return NewOpenAILLM(model, systemPrompt), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, systemPrompt)
	case "ollama":
		return NewOllamaLLM(model, systemPrompt)
	case "anthropic", "claude":
		return NewAnthropicLLM(model, systemPrompt), nil
	case "dummy":
		return NewDummyLLM(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
