// Package index defines the read/write contract to the external search
// store and ships two implementations of it: an in-memory store for tests
// and lightweight runs, and a Postgres store using pgvector for vector
// similarity and tsvector ranking for the lexical leg of hybrid search.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modalmesh/groundrag/pkg/chunk"
)

// Query is one hybrid search request. Embedding drives the vector leg,
// Text the lexical leg. Modality, when set, filters candidates.
type Query struct {
	Embedding []float32
	Text      string
	Limit     int
	Modality  chunk.Modality
}

// Hit is a scored store record. Both scores are normalized to [0, 1].
type Hit struct {
	Chunk        chunk.Chunk
	VectorScore  float64
	LexicalScore float64
}

// Writer is the write contract. Upsert is idempotent keyed by content_id.
type Writer interface {
	Upsert(ctx context.Context, c chunk.Chunk) error
	// UpsertBatch applies every chunk or reports exactly which content_ids
	// failed via *BatchError, enabling selective retry. It never partially
	// applies silently.
	UpsertBatch(ctx context.Context, chunks []chunk.Chunk) error
	// DeleteDocument removes every chunk of a document so a replaced source
	// never leaves stale chunks behind.
	DeleteDocument(ctx context.Context, documentID string) error
}

// Searcher is the read contract.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// Store combines both sides of the contract.
type Store interface {
	Writer
	Searcher
}

// SchemaInitializer lets stores expose optional schema bootstrap routines.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context, schemaPath string) error
}

// BatchError reports the content_ids a batch upsert could not apply.
type BatchError struct {
	Failed map[string]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, shortID(id))
	}
	sort.Strings(ids)
	return fmt.Sprintf("batch upsert failed for %d chunk(s): %s", len(e.Failed), strings.Join(ids, ", "))
}

// FailedIDs returns the content_ids to retry, sorted for stable output.
func (e *BatchError) FailedIDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SchemaMismatchError is fatal: the chunk does not fit the store schema.
type SchemaMismatchError struct {
	ContentID string
	Detail    string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch for chunk %s: %s", shortID(e.ContentID), e.Detail)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
