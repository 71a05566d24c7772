package embed

import (
	"context"
	"fmt"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedOptions configure the local ONNX embedding backend.
type FastEmbedOptions struct {
	Model     fastembed.EmbeddingModel // zero value picks bge-small-en-v1.5
	CacheDir  string
	MaxLength int
}

// FastEmbedder embeds locally without any network dependency.
type FastEmbedder struct {
	m   *fastembed.FlagEmbedding
	dim int
}

func NewFastEmbedder(opt *FastEmbedOptions) (*FastEmbedder, error) {
	var init *fastembed.InitOptions
	if opt != nil {
		init = &fastembed.InitOptions{
			Model:     opt.Model,
			CacheDir:  opt.CacheDir,
			MaxLength: opt.MaxLength,
		}
	}
	m, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, err
	}
	return &FastEmbedder{m: m, dim: 768}, nil
}

func (e *FastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	out, err := e.m.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("fastembed: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotSupported
	}
	return out, nil
}

func (e *FastEmbedder) Dim() int { return e.dim }

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}
