package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM generates completions against a local Ollama daemon.
type OllamaLLM struct {
	Client       *ollama.Client
	Model        string
	SystemPrompt string
}

func NewOllamaLLM(model, systemPrompt string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	c := ollama.NewClient(u, httpClient)
	return &OllamaLLM{Client: c, Model: model, SystemPrompt: systemPrompt}, nil
}

func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	var text strings.Builder
	req := &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		System: o.SystemPrompt,
	}
	if err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}

func (o *OllamaLLM) GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var full strings.Builder
		req := &ollama.GenerateRequest{
			Model:  o.Model,
			Prompt: prompt,
			System: o.SystemPrompt,
		}
		err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
			if gr.Response != "" {
				full.WriteString(gr.Response)
				ch <- StreamChunk{Delta: gr.Response}
			}
			return nil
		})
		ch <- StreamChunk{Done: true, FullText: full.String(), Err: err}
	}()
	return ch, nil
}

var _ Generator = (*OllamaLLM)(nil)
