package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/embed"
	"github.com/modalmesh/groundrag/pkg/index"
	"github.com/modalmesh/groundrag/pkg/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func newTestIngestor(analyzer Analyzer, store index.Writer) *Ingestor {
	segmenter := chunk.NewSegmenter(chunk.SegmenterOptions{MaxTokens: 20, MinTokens: 2, OverlapFraction: 0.1})
	return NewIngestor(analyzer, segmenter, embed.NewDummyEmbedder(8), store, fastPolicy(), nil)
}

func docRequest(id string, pages ...string) (Request, *StaticAnalyzer) {
	analyzer := NewStaticAnalyzer()
	result := chunk.RawAnalysisResult{Modality: chunk.ModalityDocument}
	for i, page := range pages {
		result.Spans = append(result.Spans, chunk.Span{Text: page, Locator: chunk.PageLocator(i + 1)})
	}
	analyzer.Register(id, result)
	doc := chunk.SourceDocument{ID: id, Title: id, Modality: chunk.ModalityDocument}
	return Request{Document: doc}, analyzer
}

func TestIngestStoresEmbeddedChunks(t *testing.T) {
	req, analyzer := docRequest("doc-1", "first page text", "second page text")
	store := index.NewInMemoryStore(8)
	in := newTestIngestor(analyzer, store)

	report, err := in.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", report.Chunks)
	}
	if store.Count() != 2 {
		t.Fatalf("store holds %d chunks, want 2", store.Count())
	}
}

func TestIngestRequiresDocumentID(t *testing.T) {
	req, analyzer := docRequest("", "text")
	store := index.NewInMemoryStore(8)
	in := newTestIngestor(analyzer, store)

	if _, err := in.Ingest(context.Background(), req); err == nil {
		t.Fatalf("expected an error for a missing document id")
	}
}

func TestIngestCommitsNothingOnEmptySpan(t *testing.T) {
	analyzer := NewStaticAnalyzer()
	analyzer.Register("doc-1", chunk.RawAnalysisResult{
		Modality: chunk.ModalityDocument,
		Spans: []chunk.Span{
			{Text: "a valid page", Locator: chunk.PageLocator(1)},
			{Text: "   ", Locator: chunk.PageLocator(2)},
		},
	})
	store := index.NewInMemoryStore(8)
	in := newTestIngestor(analyzer, store)

	doc := chunk.SourceDocument{ID: "doc-1", Title: "Doc", Modality: chunk.ModalityDocument}
	_, err := in.Ingest(context.Background(), Request{Document: doc})
	var empty *chunk.EmptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyContentError, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("a failed ingest left %d chunks behind", store.Count())
	}
}

func TestIngestReportsTruncation(t *testing.T) {
	analyzer := NewStaticAnalyzer()
	long := strings.Repeat("word ", 50)
	analyzer.Register("img-1", chunk.RawAnalysisResult{
		Modality: chunk.ModalityImage,
		Spans:    []chunk.Span{{Text: long, Locator: chunk.WholeImageLocator()}},
	})
	store := index.NewInMemoryStore(8)
	in := newTestIngestor(analyzer, store)

	doc := chunk.SourceDocument{ID: "img-1", Title: "Image", Modality: chunk.ModalityImage}
	report, err := in.Ingest(context.Background(), Request{Document: doc})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.Chunks != 1 || report.Truncated != 1 {
		t.Fatalf("expected 1 chunk and 1 truncation, got %+v", report)
	}
}

func TestReplaceLeavesNoStaleChunks(t *testing.T) {
	store := index.NewInMemoryStore(8)
	reqV1, analyzer := docRequest("doc-1", "version one of the page")
	in := newTestIngestor(analyzer, store)
	ctx := context.Background()

	if _, err := in.Ingest(ctx, reqV1); err != nil {
		t.Fatalf("initial ingest failed: %v", err)
	}
	oldID := chunk.ContentID("doc-1", chunk.PageLocator(1), "version one of the page")
	if !store.Has(oldID) {
		t.Fatalf("initial chunk missing")
	}

	analyzer.Register("doc-1", chunk.RawAnalysisResult{
		Modality: chunk.ModalityDocument,
		Spans:    []chunk.Span{{Text: "version two of the page", Locator: chunk.PageLocator(1)}},
	})
	if _, err := in.Replace(ctx, reqV1); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if store.Has(oldID) {
		t.Fatalf("stale chunk survived the replace")
	}
	newID := chunk.ContentID("doc-1", chunk.PageLocator(1), "version two of the page")
	if !store.Has(newID) {
		t.Fatalf("replacement chunk missing")
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	store := index.NewInMemoryStore(8)
	req, analyzer := docRequest("doc-1", "some page")
	in := newTestIngestor(analyzer, store)
	ctx := context.Background()

	if _, err := in.Ingest(ctx, req); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if err := in.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("store still holds %d chunks", store.Count())
	}
}

func TestIngestAllRunsDocumentsIndependently(t *testing.T) {
	analyzer := NewStaticAnalyzer()
	var reqs []Request
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("doc-%d", i)
		analyzer.Register(id, chunk.RawAnalysisResult{
			Modality: chunk.ModalityDocument,
			Spans:    []chunk.Span{{Text: "page of " + id, Locator: chunk.PageLocator(1)}},
		})
		reqs = append(reqs, Request{Document: chunk.SourceDocument{ID: id, Title: id, Modality: chunk.ModalityDocument}})
	}
	store := index.NewInMemoryStore(8)
	in := newTestIngestor(analyzer, store)

	if err := in.IngestAll(context.Background(), reqs); err != nil {
		t.Fatalf("IngestAll returned error: %v", err)
	}
	if store.Count() != 4 {
		t.Fatalf("expected 4 chunks, got %d", store.Count())
	}
}

// flakyWriter fails a chosen content_id once, then applies everything.
type flakyWriter struct {
	inner      *index.InMemoryStore
	failOnce   string
	failed     bool
	batchSizes []int
}

func (w *flakyWriter) Upsert(ctx context.Context, c chunk.Chunk) error {
	return w.inner.Upsert(ctx, c)
}

func (w *flakyWriter) UpsertBatch(ctx context.Context, chunks []chunk.Chunk) error {
	w.batchSizes = append(w.batchSizes, len(chunks))
	var rest []chunk.Chunk
	failedIDs := map[string]error{}
	for _, c := range chunks {
		if !w.failed && c.ContentID == w.failOnce {
			failedIDs[c.ContentID] = errors.New("transient write failure")
			continue
		}
		rest = append(rest, c)
	}
	if err := w.inner.UpsertBatch(ctx, rest); err != nil {
		return err
	}
	if len(failedIDs) > 0 {
		w.failed = true
		return &index.BatchError{Failed: failedIDs}
	}
	return nil
}

func (w *flakyWriter) DeleteDocument(ctx context.Context, documentID string) error {
	return w.inner.DeleteDocument(ctx, documentID)
}

func TestUpsertRetriesOnlyTheFailedSubset(t *testing.T) {
	req, analyzer := docRequest("doc-1", "first page text", "second page text")
	failID := chunk.ContentID("doc-1", chunk.PageLocator(2), "second page text")
	writer := &flakyWriter{inner: index.NewInMemoryStore(8), failOnce: failID}
	segmenter := chunk.NewSegmenter(chunk.SegmenterOptions{MaxTokens: 20, MinTokens: 2, OverlapFraction: 0.1})
	in := NewIngestor(analyzer, segmenter, embed.NewDummyEmbedder(8), writer, fastPolicy(), nil)

	report, err := in.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", report.Chunks)
	}
	if len(writer.batchSizes) != 2 || writer.batchSizes[0] != 2 || writer.batchSizes[1] != 1 {
		t.Fatalf("expected a full batch then a single-chunk retry, got %v", writer.batchSizes)
	}
	if !writer.inner.Has(failID) {
		t.Fatalf("the failed chunk never made it into the store")
	}
}

func TestIngestSurfacesSchemaMismatchWithoutRetry(t *testing.T) {
	req, analyzer := docRequest("doc-1", "some page")
	// Store expects a different dimension than the embedder produces.
	store := index.NewInMemoryStore(4)
	in := newTestIngestor(analyzer, store)

	_, err := in.Ingest(context.Background(), req)
	var mismatch *index.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}
