// Package synthesize turns a query plus retrieved evidence into a grounded,
// citation-backed answer. Every claim the caller sees has been checked
// against the evidence actually retrieved for that turn.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/models"
	"github.com/modalmesh/groundrag/pkg/retrieve"
	"github.com/modalmesh/groundrag/pkg/retry"
	"github.com/modalmesh/groundrag/pkg/session"
)

// DefaultSystemPrompt frames the generation collaborator. Modeled on the
// rules the production agent ships with: answer strictly from context,
// admit when nothing relevant was retrieved, reference titles, and mark
// every supported claim with a [ref:<id>] citation.
const DefaultSystemPrompt = `You are a professional assistant whose knowledge comes exclusively from the context supplied with each query.

Always follow these rules:
1. Answer strictly from the provided context. Do not invent, assume, or add details outside it.
2. If no relevant information is available in the context, politely say so.
3. Every claim supported by a context entry must cite it using its marker, e.g. [ref:<id>], where <id> is the identifier shown for that entry.
4. Reference source document titles when it helps the reader understand where the information comes from.
5. Respond in a professional, natural way, structured clearly and concisely, across any modality (text, image, video, or audio).`

// DefaultDisclaimer prefixes answers produced without any retrieved evidence.
const DefaultDisclaimer = "No supporting material was found in the indexed corpus; the following is general knowledge and not grounded in retrieved evidence."

// GenerationServiceError wraps an external generation failure with enough
// context to reproduce.
type GenerationServiceError struct {
	SessionID string
	TurnID    string
	Err       error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service failed (session=%s turn=%s): %v", e.SessionID, e.TurnID, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// Result is the verified synthesis output.
type Result struct {
	Answer    string
	Citations []retrieve.Citation
	Grounded  bool
	// UnverifiedCitationRemoved is set when the completion cited an id not
	// present in this turn's evidence. The prose is left intact; only the
	// citation list is filtered.
	UnverifiedCitationRemoved bool
	// Degraded is set when the generation service failed after retries and
	// the answer states so instead of surfacing the error.
	Degraded bool
}

// Options configure prompt shape and citation contract.
type Options struct {
	SystemPrompt  string
	Disclaimer    string
	MarkerPattern string
	// HistoryLimit bounds the turns included in the prompt, on top of the
	// session window.
	HistoryLimit int
}

// Synthesizer builds prompts, invokes the generation collaborator, and
// verifies citations.
type Synthesizer struct {
	model  models.Generator
	parser *CitationParser
	opts   Options
	policy retry.Policy
	log    *logging.Logger
}

func New(model models.Generator, opts Options, policy retry.Policy, log *logging.Logger) (*Synthesizer, error) {
	if model == nil {
		return nil, errors.New("synthesizer requires a generation model")
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Disclaimer == "" {
		opts.Disclaimer = DefaultDisclaimer
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 8
	}
	parser, err := NewCitationParser(opts.MarkerPattern)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Synthesizer{model: model, parser: parser, opts: opts, policy: policy, log: log}, nil
}

// Request carries one synthesis turn's inputs. Evidence may be empty, which
// selects the explicit no-grounding path.
type Request struct {
	SessionID string
	TurnID    string
	Query     string
	History   []session.Turn
	Evidence  []retrieve.EvidenceItem
}

// Synthesize runs one generation and verifies its citations. External
// failures are retried; once retries are exhausted a degraded but well-formed
// result is returned instead of an error. Only context cancellation
// propagates as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	prompt := s.buildPrompt(req)

	var completion string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		completion, genErr = s.model.Generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		gse := &GenerationServiceError{SessionID: req.SessionID, TurnID: req.TurnID, Err: err}
		s.log.Error("generation failed, returning degraded answer", "session_id", req.SessionID, "turn_id", req.TurnID, "error", err)
		return Result{
			Answer:   fmt.Sprintf("I encountered an error while processing your request: %v", gse.Err),
			Degraded: true,
		}, nil
	}

	return s.finishResult(req, completion), nil
}

// finishResult applies citation verification and grounding flags to a
// completed generation.
func (s *Synthesizer) finishResult(req Request, completion string) Result {
	ids := s.parser.Parse(completion)
	citations, removed := verify(ids, req.Evidence)
	if removed {
		s.log.Warn("removed unverified citations", "session_id", req.SessionID, "turn_id", req.TurnID,
			"parsed", len(ids), "kept", len(citations))
	}

	result := Result{
		Answer:                    completion,
		Citations:                 citations,
		Grounded:                  len(req.Evidence) > 0,
		UnverifiedCitationRemoved: removed,
	}
	if len(req.Evidence) == 0 {
		result.Answer = s.opts.Disclaimer + "\n\n" + completion
		result.Citations = nil
	}
	return result
}

func (s *Synthesizer) buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(s.opts.SystemPrompt)
	sb.WriteString("\n\n")

	history := req.History
	if len(history) > s.opts.HistoryLimit {
		history = history[len(history)-s.opts.HistoryLimit:]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			sb.WriteString("User: ")
			sb.WriteString(turn.Query)
			sb.WriteString("\nAssistant: ")
			sb.WriteString(turn.Answer)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(req.Evidence) == 0 {
		sb.WriteString("Context: (no relevant material was retrieved; say so plainly)\n")
	} else {
		sb.WriteString("Context, ranked by relevance:\n")
		for i, item := range req.Evidence {
			fmt.Fprintf(&sb, "%d. [ref:%s] title=%q modality=%s locator=%s score=%.4f\n%s\n",
				i+1, item.Chunk.ContentID, item.Chunk.DocumentTitle, item.Chunk.Modality,
				item.Chunk.Locator, item.Score, strings.TrimSpace(item.Chunk.Text))
		}
	}

	sb.WriteString("\nUser query:\n")
	sb.WriteString(req.Query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
