package synthesize

import (
	"context"
	"fmt"
)

// StreamEvent is one element of an incremental synthesis. Text fragments
// arrive first; the final event has Done set and carries the verified
// Result. Verification is deferred until the fragment sequence completes,
// so partial text is never treated as citable.
type StreamEvent struct {
	Delta  string
	Done   bool
	Result *Result
	Err    error
}

// SynthesizeStream is the optional incremental mode. The fragment sequence
// is finite and non-restartable; the final verification step is identical to
// the non-streaming path.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := s.buildPrompt(req)
	stream, err := s.model.GenerateStream(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		gse := &GenerationServiceError{SessionID: req.SessionID, TurnID: req.TurnID, Err: err}
		s.log.Error("stream start failed, returning degraded answer", "session_id", req.SessionID, "turn_id", req.TurnID, "error", err)
		out := make(chan StreamEvent, 1)
		out <- StreamEvent{Done: true, Result: &Result{
			Answer:   fmt.Sprintf("I encountered an error while processing your request: %v", gse.Err),
			Degraded: true,
		}}
		close(out)
		return out, nil
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		// Sends race ctx so a consumer that stops reading cannot strand
		// this goroutine.
		emit := func(ev StreamEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		var full string
		for chunk := range stream {
			if chunk.Err != nil {
				s.log.Error("stream failed mid-sequence", "session_id", req.SessionID, "turn_id", req.TurnID, "error", chunk.Err)
				emit(StreamEvent{Done: true, Result: &Result{
					Answer:   fmt.Sprintf("I encountered an error while processing your request: %v", chunk.Err),
					Degraded: true,
				}})
				return
			}
			if chunk.Done {
				if chunk.FullText != "" {
					full = chunk.FullText
				}
				break
			}
			full += chunk.Delta
			select {
			case out <- StreamEvent{Delta: chunk.Delta}:
			case <-ctx.Done():
				emit(StreamEvent{Done: true, Err: ctx.Err()})
				return
			}
		}
		result := s.finishResult(req, full)
		emit(StreamEvent{Done: true, Result: &result})
	}()
	return out, nil
}
