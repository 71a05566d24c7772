package groundrag

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// QueryEvent is one element of a streamed query. Deltas arrive first; the
// final event carries the verified Answer. Citation verification runs only
// after the fragment sequence completes, exactly as in the non-streaming
// path.
type QueryEvent struct {
	Delta  string
	Done   bool
	Answer *Answer
	Err    error
}

// QueryStream answers one question, delivering partial text incrementally.
// The turn is appended only once the final, verified answer exists.
func (a *Agent) QueryStream(ctx context.Context, sessionID, queryText string) (<-chan QueryEvent, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, errors.New("query text is empty")
	}
	release, err := a.sessions.BeginQuery(sessionID)
	if err != nil {
		return nil, err
	}

	out := make(chan QueryEvent)
	go func() {
		defer close(out)
		defer release()

		turnID := uuid.NewString()
		log := a.log.With("session_id", sessionID, "turn_id", turnID)

		// Every send races ctx so an abandoned consumer cannot strand the
		// goroutine and leave the session claimed.
		emit := func(ev QueryEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		evidence, result, err := a.runTurn(ctx, log, sessionID, turnID, queryText, func(delta string) {
			emit(QueryEvent{Delta: delta})
		})
		if err != nil {
			emit(QueryEvent{Done: true, Err: err})
			return
		}
		answer, err := a.record(ctx, log, sessionID, turnID, queryText, evidence, *result)
		if err != nil {
			emit(QueryEvent{Done: true, Err: err})
			return
		}
		emit(QueryEvent{Done: true, Answer: answer})
	}()
	return out, nil
}
