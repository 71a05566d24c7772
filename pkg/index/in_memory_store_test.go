package index

import (
	"context"
	"errors"
	"testing"

	"github.com/modalmesh/groundrag/pkg/chunk"
)

func testChunk(docID string, page int, text string, embedding []float32) chunk.Chunk {
	loc := chunk.PageLocator(page)
	return chunk.Chunk{
		ContentID:     chunk.ContentID(docID, loc, text),
		DocumentID:    docID,
		DocumentTitle: docID,
		Text:          text,
		Modality:      chunk.ModalityDocument,
		Locator:       loc,
		Embedding:     embedding,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := NewInMemoryStore(3)
	ctx := context.Background()
	c := testChunk("doc-1", 1, "hello world", []float32{1, 0, 0})

	if err := store.Upsert(ctx, c); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, c); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 record after repeated upsert, got %d", store.Count())
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	store := NewInMemoryStore(3)
	c := testChunk("doc-1", 1, "hello", []float32{1, 0})

	err := store.Upsert(context.Background(), c)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if mismatch.ContentID != c.ContentID {
		t.Fatalf("error names wrong chunk: %s", mismatch.ContentID)
	}
}

func TestUpsertBatchReportsOnlyFailedIDs(t *testing.T) {
	store := NewInMemoryStore(3)
	good := testChunk("doc-1", 1, "good", []float32{1, 0, 0})
	bad := testChunk("doc-1", 2, "bad", []float32{1})

	err := store.UpsertBatch(context.Background(), []chunk.Chunk{good, bad})
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	ids := batch.FailedIDs()
	if len(ids) != 1 || ids[0] != bad.ContentID {
		t.Fatalf("unexpected failed ids: %v", ids)
	}
	if !store.Has(good.ContentID) {
		t.Fatalf("successful chunk was not applied")
	}
	if store.Has(bad.ContentID) {
		t.Fatalf("failed chunk was applied anyway")
	}
}

func TestDeleteDocumentRemovesEveryChunk(t *testing.T) {
	store := NewInMemoryStore(2)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := store.Upsert(ctx, testChunk("doc-1", i, "text", []float32{1, 0})); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	keep := testChunk("doc-2", 1, "other", []float32{0, 1})
	if err := store.Upsert(ctx, keep); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := store.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected only the other document to remain, got %d records", store.Count())
	}
	if !store.Has(keep.ContentID) {
		t.Fatalf("delete removed a chunk from another document")
	}
}

func TestSearchRanksByHybridScore(t *testing.T) {
	store := NewInMemoryStore(2)
	ctx := context.Background()
	near := testChunk("doc-1", 1, "rotor balancing procedure", []float32{1, 0})
	far := testChunk("doc-1", 2, "unrelated appendix", []float32{0, 1})
	if err := store.UpsertBatch(ctx, []chunk.Chunk{near, far}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	hits, err := store.Search(ctx, Query{
		Embedding: []float32{1, 0},
		Text:      "rotor balancing",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ContentID != near.ContentID {
		t.Fatalf("expected the matching chunk first, got %q", hits[0].Chunk.Text)
	}
	if hits[0].VectorScore <= hits[1].VectorScore {
		t.Fatalf("vector scores are not ordered: %f vs %f", hits[0].VectorScore, hits[1].VectorScore)
	}
	if hits[0].LexicalScore != 1 {
		t.Fatalf("expected full lexical overlap, got %f", hits[0].LexicalScore)
	}
}

func TestSearchFiltersByModality(t *testing.T) {
	store := NewInMemoryStore(2)
	ctx := context.Background()
	doc := testChunk("doc-1", 1, "vector text", []float32{1, 0})
	img := doc
	img.DocumentID = "img-1"
	img.Modality = chunk.ModalityImage
	img.Locator = chunk.WholeImageLocator()
	img.ContentID = chunk.ContentID(img.DocumentID, img.Locator, img.Text)
	if err := store.UpsertBatch(ctx, []chunk.Chunk{doc, img}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	hits, err := store.Search(ctx, Query{
		Embedding: []float32{1, 0},
		Text:      "vector",
		Limit:     10,
		Modality:  chunk.ModalityImage,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Modality != chunk.ModalityImage {
		t.Fatalf("modality filter did not apply: %#v", hits)
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	store := NewInMemoryStore(2)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := store.Upsert(ctx, testChunk("doc-1", i, "text", []float32{1, 0})); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	hits, err := store.Search(ctx, Query{Embedding: []float32{1, 0}, Text: "text", Limit: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}
