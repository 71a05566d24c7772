package models

import "context"

// StreamChunk is one fragment of an incremental completion. The final chunk
// has Done set and FullText carrying the whole completion.
type StreamChunk struct {
	Delta    string
	FullText string
	Done     bool
	Err      error
}

// Generator is the external generation collaborator: one structured prompt
// in, completion text out, optionally delivered incrementally.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error)
}

// immediateStream wraps a completed result in a single-chunk stream, for
// backends without native streaming.
func immediateStream(text string, err error) (<-chan StreamChunk, error) {
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Delta: text, FullText: text, Done: true}
	close(ch)
	return ch, nil
}
