package models

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM generates completions with OpenAI chat models.
type OpenAILLM struct {
	Client       *openai.Client
	Model        string
	SystemPrompt string
}

func NewOpenAILLM(model, systemPrompt string) *OpenAILLM {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	client := openai.NewClient(apiKey)
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAILLM{Client: client, Model: model, SystemPrompt: systemPrompt}
}

func (o *OpenAILLM) messages(prompt string) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if o.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.SystemPrompt,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: o.messages(prompt),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	stream, err := o.Client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: o.messages(prompt),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()
		var full strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- StreamChunk{Done: true, FullText: full.String()}
				return
			}
			if err != nil {
				ch <- StreamChunk{Done: true, FullText: full.String(), Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta != "" {
				full.WriteString(delta)
				ch <- StreamChunk{Delta: delta}
			}
		}
	}()
	return ch, nil
}

var _ Generator = (*OpenAILLM)(nil)
