package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modalmesh/groundrag/pkg/chunk"
)

// PostgresStore implements Store using Postgres + pgvector for the vector
// leg and ts_rank for the lexical leg of hybrid search.
type PostgresStore struct {
	DB  *pgxpool.Pool
	dim int
}

// NewPostgresStore connects to Postgres and returns a pgvector-backed store.
func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db, dim: dim}, nil
}

func (ps *PostgresStore) Upsert(ctx context.Context, c chunk.Chunk) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if ps.dim > 0 && len(c.Embedding) != ps.dim {
		return &SchemaMismatchError{ContentID: c.ContentID, Detail: "wrong embedding dimension"}
	}
	query := `
                INSERT INTO corpus_chunks (content_id, document_id, document_title, content_text, modality, locator, content_embedding)
                VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
                ON CONFLICT (content_id) DO UPDATE SET
                        document_title = EXCLUDED.document_title,
                        content_text = EXCLUDED.content_text,
                        modality = EXCLUDED.modality,
                        locator = EXCLUDED.locator,
                        content_embedding = EXCLUDED.content_embedding;
        `
	_, err := ps.DB.Exec(ctx, query,
		c.ContentID, c.DocumentID, c.DocumentTitle, c.Text, string(c.Modality), c.Locator.String(), vectorLiteral(c.Embedding))
	return err
}

func (ps *PostgresStore) UpsertBatch(ctx context.Context, chunks []chunk.Chunk) error {
	failed := map[string]error{}
	for _, c := range chunks {
		if err := ps.Upsert(ctx, c); err != nil {
			failed[c.ContentID] = err
		}
	}
	if len(failed) > 0 {
		return &BatchError{Failed: failed}
	}
	return nil
}

func (ps *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `DELETE FROM corpus_chunks WHERE document_id = $1;`, documentID)
	return err
}

func (ps *PostgresStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT content_id, document_id, document_title, content_text, modality, locator,
               (1 - (content_embedding <=> $1::vector) / 2) AS vector_score,
               ts_rank_cd(to_tsvector('english', content_text), plainto_tsquery('english', $2)) AS lexical_score
        FROM corpus_chunks
        WHERE ($3 = '' OR modality = $3)
        ORDER BY content_embedding <=> $1::vector
        LIMIT $4;
        `, vectorLiteral(q.Embedding), q.Text, string(q.Modality), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit      Hit
			modality string
			locator  string
		)
		if err := rows.Scan(&hit.Chunk.ContentID, &hit.Chunk.DocumentID, &hit.Chunk.DocumentTitle,
			&hit.Chunk.Text, &modality, &locator, &hit.VectorScore, &hit.LexicalScore); err != nil {
			return nil, err
		}
		hit.Chunk.Modality = chunk.Modality(modality)
		hit.Chunk.Locator = chunk.ParseLocator(locator)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// CreateSchema ensures the pgvector extension and chunk table are available.
func (ps *PostgresStore) CreateSchema(ctx context.Context, schemaPath string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := ps.DB.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

func vectorLiteral(embedding []float32) string {
	jsonEmbed, _ := json.Marshal(embedding)
	return fmt.Sprintf("[%s]", strings.Trim(string(jsonEmbed), "[]"))
}
