package models

import (
	"context"
	"errors"
	"fmt"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLM generates completions with Google Gemini models.
type GeminiLLM struct {
	Client       *genai.Client
	Model        string
	SystemPrompt string
}

func NewGeminiLLM(ctx context.Context, model, systemPrompt string) (*GeminiLLM, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiLLM{Client: client, Model: model, SystemPrompt: systemPrompt}, nil
}

func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.Client.GenerativeModel(g.Model)
	if g.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.SystemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	return fmt.Sprint(resp.Candidates[0].Content.Parts[0]), nil
}

func (g *GeminiLLM) GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	text, err := g.Generate(ctx, prompt)
	return immediateStream(text, err)
}

var _ Generator = (*GeminiLLM)(nil)
