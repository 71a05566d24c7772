package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotSupported signals a backend that cannot produce embeddings for the
// given input.
var ErrNotSupported = errors.New("embedding not supported by this backend")

// Embedder is the external embedding collaborator. The same implementation
// must encode both indexed chunks and queries so vectors share one space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dim reports the fixed embedding dimension, set at configuration time.
	Dim() int
}

// CheckDim verifies a produced vector against the configured dimension.
func CheckDim(e Embedder, vec []float32) error {
	if want := e.Dim(); len(vec) != want {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), want)
	}
	return nil
}

// DummyEmbedder produces deterministic byte-histogram vectors. Useful for
// tests and local runs without an embedding service.
type DummyEmbedder struct {
	Dimension int
}

func NewDummyEmbedder(dim int) *DummyEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &DummyEmbedder{Dimension: dim}
}

func (d *DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.Dimension)
	for i, ch := range []byte(text) {
		vec[i%d.Dimension] += float32(ch) / 255.0
	}
	return vec, nil
}

func (d *DummyEmbedder) Dim() int { return d.Dimension }
