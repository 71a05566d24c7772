package embed

import (
	"context"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIEmbeddingDim = 3072

// OpenAIEmbedder encodes text with an OpenAI embedding model.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder reads OPENAI_API_KEY from the environment. The dimension
// must match the model; text-embedding-3-large produces 3072-wide vectors.
func NewOpenAIEmbedder(model string, dim int) (*OpenAIEmbedder, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_KEY")
	}
	cfg := openai.DefaultConfig(key)
	cli := openai.NewClientWithConfig(cfg)
	if model == "" {
		model = string(openai.LargeEmbedding3)
	}
	if dim <= 0 {
		dim = defaultOpenAIEmbeddingDim
	}
	return &OpenAIEmbedder{client: cli, model: model, dim: dim}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNotSupported
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dim() int { return e.dim }
