// Package groundrag answers natural-language questions from a heterogeneous
// corpus (documents, video, audio, images), synthesizing answers whose every
// citation is traceable to evidence retrieved for that turn.
package groundrag

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/ingest"
	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/retrieve"
	"github.com/modalmesh/groundrag/pkg/session"
	"github.com/modalmesh/groundrag/pkg/synthesize"
)

// state tracks one query lifecycle. Every path terminates in stateResponding;
// failures detour through stateDegraded but never leave a query hanging.
type state string

const (
	stateIdle         state = "idle"
	stateRetrieving   state = "retrieving"
	stateSynthesizing state = "synthesizing"
	stateVerifying    state = "verifying"
	stateResponding   state = "responding"
	stateDegraded     state = "degraded"
)

// Agent is the exposed surface: session start, query, and document ingest.
type Agent struct {
	retriever   *retrieve.Retriever
	synthesizer *synthesize.Synthesizer
	sessions    *session.Manager
	ingestor    *ingest.Ingestor
	log         *logging.Logger
}

// Options configure a new Agent. All fields except Logger are required.
type Options struct {
	Retriever   *retrieve.Retriever
	Synthesizer *synthesize.Synthesizer
	Sessions    *session.Manager
	Ingestor    *ingest.Ingestor
	Logger      *logging.Logger
}

func New(opts Options) (*Agent, error) {
	if opts.Retriever == nil {
		return nil, errors.New("agent requires a retriever")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("agent requires a synthesizer")
	}
	if opts.Sessions == nil {
		return nil, errors.New("agent requires a session manager")
	}
	if opts.Ingestor == nil {
		return nil, errors.New("agent requires an ingestor")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Agent{
		retriever:   opts.Retriever,
		synthesizer: opts.Synthesizer,
		sessions:    opts.Sessions,
		ingestor:    opts.Ingestor,
		log:         log,
	}, nil
}

// Answer is the verified result of one query.
type Answer struct {
	SessionID                 string
	TurnID                    string
	Query                     string
	Answer                    string
	Citations                 []retrieve.Citation
	Grounded                  bool
	UnverifiedCitationRemoved bool
	Degraded                  bool
}

// StartSession opens a new conversation and returns its id.
func (a *Agent) StartSession(ctx context.Context) (string, error) {
	return a.sessions.StartSession(ctx)
}

// Query answers one question in a session. At most one query per session is
// in flight at a time. If ctx is cancelled before the answer is recorded, no
// turn is appended.
func (a *Agent) Query(ctx context.Context, sessionID, queryText string) (*Answer, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, errors.New("query text is empty")
	}
	release, err := a.sessions.BeginQuery(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	turnID := uuid.NewString()
	log := a.log.With("session_id", sessionID, "turn_id", turnID)

	evidence, result, err := a.runTurn(ctx, log, sessionID, turnID, queryText, nil)
	if err != nil {
		return nil, err
	}
	return a.record(ctx, log, sessionID, turnID, queryText, evidence, *result)
}

// runTurn walks the lifecycle up to verification. A non-nil onFragment
// receives streaming deltas. Only context cancellation is returned as an
// error; every other failure degrades into a well-formed result.
func (a *Agent) runTurn(ctx context.Context, log *logging.Logger, sessionID, turnID, queryText string, onFragment func(string)) ([]retrieve.EvidenceItem, *synthesize.Result, error) {
	log.Debug("query state", "state", stateRetrieving)
	evidence, err := a.retriever.Retrieve(ctx, queryText, "")
	switch {
	case errors.Is(err, retrieve.ErrEmptyResult):
		// Non-fatal: the synthesizer answers without grounding, flagged.
		evidence = nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		log.Error("retrieval failed", "state", stateDegraded, "error", err)
		return nil, &synthesize.Result{
			Answer:   "I encountered an error while processing your request: " + err.Error(),
			Degraded: true,
		}, nil
	}

	history, err := a.sessions.ContextWindow(sessionID)
	if err != nil {
		return nil, nil, err
	}

	req := synthesize.Request{
		SessionID: sessionID,
		TurnID:    turnID,
		Query:     queryText,
		History:   history,
		Evidence:  evidence,
	}

	log.Debug("query state", "state", stateSynthesizing)
	var result synthesize.Result
	if onFragment == nil {
		result, err = a.synthesizer.Synthesize(ctx, req)
		if err != nil {
			return nil, nil, err
		}
	} else {
		events, err := a.synthesizer.SynthesizeStream(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		for event := range events {
			if event.Err != nil {
				return nil, nil, event.Err
			}
			if event.Done {
				result = *event.Result
				break
			}
			onFragment(event.Delta)
		}
	}
	log.Debug("query state", "state", stateVerifying)
	return evidence, &result, nil
}

// record appends the completed turn and shapes the Answer. An abandoned
// query (ctx cancelled before this point) never reaches the ledger.
func (a *Agent) record(ctx context.Context, log *logging.Logger, sessionID, turnID, queryText string, evidence []retrieve.EvidenceItem, result synthesize.Result) (*Answer, error) {
	if ctx.Err() != nil {
		log.Warn("query abandoned before responding", "error", ctx.Err())
		return nil, ctx.Err()
	}
	log.Debug("query state", "state", stateResponding)
	turn := session.Turn{
		ID:        turnID,
		Query:     queryText,
		Evidence:  evidence,
		Answer:    result.Answer,
		Citations: result.Citations,
	}
	if err := a.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		return nil, err
	}
	log.Info("query answered",
		"grounded", result.Grounded,
		"citations", len(result.Citations),
		"unverified_citation_removed", result.UnverifiedCitationRemoved,
		"degraded", result.Degraded)
	return &Answer{
		SessionID:                 sessionID,
		TurnID:                    turnID,
		Query:                     queryText,
		Answer:                    result.Answer,
		Citations:                 result.Citations,
		Grounded:                  result.Grounded,
		UnverifiedCitationRemoved: result.UnverifiedCitationRemoved,
		Degraded:                  result.Degraded,
	}, nil
}

// Ingest analyzes and indexes one document.
func (a *Agent) Ingest(ctx context.Context, doc chunk.SourceDocument, files []ingest.File) (*ingest.Report, error) {
	return a.ingestor.Ingest(ctx, ingest.Request{Document: doc, Files: files})
}

// IngestAll ingests independent documents in parallel.
func (a *Agent) IngestAll(ctx context.Context, reqs []ingest.Request) error {
	return a.ingestor.IngestAll(ctx, reqs)
}

// ReplaceDocument deletes a document's chunks and re-ingests it without a
// window where stale and fresh chunks coexist.
func (a *Agent) ReplaceDocument(ctx context.Context, doc chunk.SourceDocument, files []ingest.File) (*ingest.Report, error) {
	return a.ingestor.Replace(ctx, ingest.Request{Document: doc, Files: files})
}

// DeleteDocument removes every chunk of the document from the store.
func (a *Agent) DeleteDocument(ctx context.Context, documentID string) error {
	return a.ingestor.Delete(ctx, documentID)
}

// History returns a session's full persisted turn sequence.
func (a *Agent) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	return a.sessions.History(ctx, sessionID)
}
