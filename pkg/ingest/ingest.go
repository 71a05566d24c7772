// Package ingest runs the write side of the pipeline: analysis output in,
// normalized and embedded chunks upserted to the store. Independent
// documents proceed fully in parallel; replacing a document serializes the
// delete against new writes so stale and fresh chunks never coexist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/embed"
	"github.com/modalmesh/groundrag/pkg/index"
	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/retry"
)

// File is a raw source file handed to the analysis collaborator.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Analyzer is the external content-analysis collaborator: OCR, ASR, vision
// description. Its internals are out of scope; only the result shape is.
type Analyzer interface {
	Analyze(ctx context.Context, doc chunk.SourceDocument, files []File) (chunk.RawAnalysisResult, error)
}

// Request is one document-ingest operation.
type Request struct {
	Document chunk.SourceDocument
	Files    []File
}

// Report summarizes a completed ingestion.
type Report struct {
	DocumentID string
	Chunks     int
	Truncated  int
}

// Ingestor drives normalize → segment → embed → upsert for each document.
type Ingestor struct {
	analyzer  Analyzer
	segmenter *chunk.Segmenter
	embedder  embed.Embedder
	store     index.Writer
	policy    retry.Policy
	log       *logging.Logger

	mu       sync.Mutex
	docLocks map[string]*sync.RWMutex
}

func NewIngestor(analyzer Analyzer, segmenter *chunk.Segmenter, embedder embed.Embedder, store index.Writer, policy retry.Policy, log *logging.Logger) *Ingestor {
	if log == nil {
		log = logging.Nop()
	}
	return &Ingestor{
		analyzer:  analyzer,
		segmenter: segmenter,
		embedder:  embedder,
		store:     store,
		policy:    policy,
		log:       log,
		docLocks:  make(map[string]*sync.RWMutex),
	}
}

func (in *Ingestor) lockFor(documentID string) *sync.RWMutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, ok := in.docLocks[documentID]
	if !ok {
		l = &sync.RWMutex{}
		in.docLocks[documentID] = l
	}
	return l
}

// Ingest processes one document. Nothing is committed if analysis,
// normalization, or segmentation fails: embeddings and upserts only start
// once the chunk set is final.
func (in *Ingestor) Ingest(ctx context.Context, req Request) (*Report, error) {
	l := in.lockFor(req.Document.ID)
	l.RLock()
	defer l.RUnlock()
	return in.ingestLocked(ctx, req)
}

func (in *Ingestor) ingestLocked(ctx context.Context, req Request) (*Report, error) {
	doc := req.Document
	if doc.ID == "" {
		return nil, errors.New("document id is required")
	}

	var raw chunk.RawAnalysisResult
	err := in.policy.Do(ctx, func(ctx context.Context) error {
		var analyzeErr error
		raw, analyzeErr = in.analyzer.Analyze(ctx, doc, req.Files)
		return analyzeErr
	})
	if err != nil {
		return nil, fmt.Errorf("analysis of document %s: %w", doc.ID, err)
	}

	candidates, err := chunk.Normalize(doc, raw)
	if err != nil {
		return nil, err
	}
	chunks, warnings, err := in.segmenter.Segment(candidates)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		in.log.Warn("content truncated during segmentation", "document_id", w.DocumentID, "locator", w.Locator.String(), "original_tokens", w.OriginalTokens)
	}

	for i := range chunks {
		text := chunks[i].Text
		var embedding []float32
		err := in.policy.Do(ctx, func(ctx context.Context) error {
			var embErr error
			embedding, embErr = in.embedder.Embed(ctx, text)
			return embErr
		})
		if err != nil {
			return nil, fmt.Errorf("embedding chunk of document %s: %w", doc.ID, err)
		}
		if err := embed.CheckDim(in.embedder, embedding); err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		chunks[i].Embedding = embedding
	}

	if err := in.upsertWithRetry(ctx, chunks); err != nil {
		return nil, fmt.Errorf("indexing document %s: %w", doc.ID, err)
	}

	in.log.Info("document ingested", "document_id", doc.ID, "modality", string(doc.Modality), "chunks", len(chunks), "truncated", len(warnings))
	return &Report{DocumentID: doc.ID, Chunks: len(chunks), Truncated: len(warnings)}, nil
}

// upsertWithRetry retries only the chunks a batch reports as failed.
// Schema mismatches are fatal and surface immediately.
func (in *Ingestor) upsertWithRetry(ctx context.Context, chunks []chunk.Chunk) error {
	pending := chunks
	return in.policy.Do(ctx, func(ctx context.Context) error {
		err := in.store.UpsertBatch(ctx, pending)
		if err == nil {
			return nil
		}
		var batchErr *index.BatchError
		if !errors.As(err, &batchErr) {
			return err
		}
		for _, cause := range batchErr.Failed {
			var mismatch *index.SchemaMismatchError
			if errors.As(cause, &mismatch) {
				return retry.Permanent(mismatch)
			}
		}
		var remaining []chunk.Chunk
		for _, c := range pending {
			if _, failed := batchErr.Failed[c.ContentID]; failed {
				remaining = append(remaining, c)
			}
		}
		pending = remaining
		return batchErr
	})
}

// IngestAll ingests independent documents in parallel.
func (in *Ingestor) IngestAll(ctx context.Context, reqs []Request) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			_, err := in.Ingest(ctx, req)
			return err
		})
	}
	return g.Wait()
}

// Replace atomically swaps a document: the delete completes before any new
// chunk becomes visible, and no other writer touches the document meanwhile.
func (in *Ingestor) Replace(ctx context.Context, req Request) (*Report, error) {
	l := in.lockFor(req.Document.ID)
	l.Lock()
	defer l.Unlock()
	if err := in.deleteLocked(ctx, req.Document.ID); err != nil {
		return nil, err
	}
	return in.ingestLocked(ctx, req)
}

// Delete removes every chunk of a document from the store.
func (in *Ingestor) Delete(ctx context.Context, documentID string) error {
	l := in.lockFor(documentID)
	l.Lock()
	defer l.Unlock()
	return in.deleteLocked(ctx, documentID)
}

func (in *Ingestor) deleteLocked(ctx context.Context, documentID string) error {
	err := in.policy.Do(ctx, func(ctx context.Context) error {
		return in.store.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}
