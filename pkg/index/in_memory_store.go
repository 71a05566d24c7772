package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/modalmesh/groundrag/pkg/chunk"
)

// InMemoryStore implements Store for tests and lightweight deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records map[string]chunk.Chunk
}

// NewInMemoryStore creates a store enforcing the given embedding dimension.
// dim <= 0 disables the check.
func NewInMemoryStore(dim int) *InMemoryStore {
	return &InMemoryStore{dim: dim, records: make(map[string]chunk.Chunk)}
}

func (s *InMemoryStore) Upsert(_ context.Context, c chunk.Chunk) error {
	if s.dim > 0 && len(c.Embedding) != s.dim {
		return &SchemaMismatchError{ContentID: c.ContentID, Detail: "wrong embedding dimension"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Embedding = append([]float32(nil), c.Embedding...)
	s.records[c.ContentID] = c
	return nil
}

func (s *InMemoryStore) UpsertBatch(ctx context.Context, chunks []chunk.Chunk) error {
	failed := map[string]error{}
	for _, c := range chunks {
		if err := s.Upsert(ctx, c); err != nil {
			failed[c.ContentID] = err
		}
	}
	if len(failed) > 0 {
		return &BatchError{Failed: failed}
	}
	return nil
}

func (s *InMemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *InMemoryStore) Search(_ context.Context, q Query) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q.Limit <= 0 {
		return nil, nil
	}
	queryTerms := lexicalTerms(q.Text)
	hits := make([]Hit, 0, len(s.records))
	for _, rec := range s.records {
		if q.Modality != "" && rec.Modality != q.Modality {
			continue
		}
		hits = append(hits, Hit{
			Chunk:        rec,
			VectorScore:  cosineSimilarity(q.Embedding, rec.Embedding),
			LexicalScore: lexicalOverlap(queryTerms, rec.Text),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		si := hits[i].VectorScore + hits[i].LexicalScore
		sj := hits[j].VectorScore + hits[j].LexicalScore
		if si != sj {
			return si > sj
		}
		return hits[i].Chunk.ContentID < hits[j].Chunk.ContentID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// Count reports the number of stored chunks.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Has reports whether a content_id is present.
func (s *InMemoryStore) Has(contentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[contentID]
	return ok
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map [-1, 1] onto [0, 1] so both hybrid legs share a scale.
	return (cos + 1) / 2
}

func lexicalTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// lexicalOverlap scores the fraction of query terms present in the text.
func lexicalOverlap(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range queryTerms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
