package groundrag

import (
	"context"
	"fmt"
	"time"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/config"
	"github.com/modalmesh/groundrag/pkg/embed"
	"github.com/modalmesh/groundrag/pkg/index"
	"github.com/modalmesh/groundrag/pkg/ingest"
	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/models"
	"github.com/modalmesh/groundrag/pkg/retrieve"
	"github.com/modalmesh/groundrag/pkg/retry"
	"github.com/modalmesh/groundrag/pkg/session"
	"github.com/modalmesh/groundrag/pkg/synthesize"
)

// NewFromConfig assembles a fully wired Agent from configuration. The
// returned cleanup releases store and archive connections.
func NewFromConfig(ctx context.Context, cfg *config.Config, analyzer ingest.Analyzer, log *logging.Logger) (*Agent, func(), error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Nop()
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.AttemptCount,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store index.Store
	switch cfg.Store.Type {
	case "", "memory":
		store = index.NewInMemoryStore(cfg.Embedding.Dimension)
	case "postgres":
		pg, err := index.NewPostgresStore(ctx, cfg.Store.ConnString, cfg.Embedding.Dimension)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.SchemaPath != "" {
			if err := pg.CreateSchema(ctx, cfg.Store.SchemaPath); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		cleanups = append(cleanups, func() { _ = pg.Close() })
		store = pg
	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}

	var archive session.TurnArchive
	switch cfg.Archive.Type {
	case "", "memory":
		archive = session.NewInMemoryArchive()
	case "mongo":
		ma, err := session.NewMongoArchive(ctx, cfg.Archive.URI, cfg.Archive.Database, cfg.Archive.Collection)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = ma.Close() })
		archive = ma
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown archive type: %s", cfg.Archive.Type)
	}

	generator, err := models.NewProvider(ctx, cfg.Generation.Provider, cfg.Generation.Model, synthesize.DefaultSystemPrompt)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	segmenter := chunkSegmenter(cfg)
	retriever := retrieve.NewRetriever(embedder, store, retrieve.Options{
		TopK:           cfg.Retrieval.TopK,
		TopNMultiplier: cfg.Retrieval.TopNMultiplier,
		VectorWeight:   cfg.Retrieval.VectorWeight,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		Epsilon:        cfg.Retrieval.Epsilon,
	}, policy, log)

	synthesizer, err := synthesize.New(generator, synthesize.Options{
		MarkerPattern: cfg.Generation.MarkerPattern,
		HistoryLimit:  cfg.Session.WindowSize,
	}, policy, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sessions := session.NewManager(cfg.Session.WindowSize, archive, log)
	ingestor := ingest.NewIngestor(analyzer, segmenter, embedder, store, policy, log)

	agent, err := New(Options{
		Retriever:   retriever,
		Synthesizer: synthesizer,
		Sessions:    sessions,
		Ingestor:    ingestor,
		Logger:      log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return agent, cleanup, nil
}

func chunkSegmenter(cfg *config.Config) *chunk.Segmenter {
	return chunk.NewSegmenter(chunk.SegmenterOptions{
		MaxTokens:       cfg.Chunking.MaxTokens,
		MinTokens:       cfg.Chunking.MinTokens,
		OverlapFraction: cfg.Chunking.OverlapFraction,
	})
}

func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "", "openai":
		return embed.NewOpenAIEmbedder(cfg.Embedding.Model, cfg.Embedding.Dimension)
	case "ollama":
		return embed.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.Dimension)
	case "fastembed":
		return embed.NewFastEmbedder(nil)
	case "dummy":
		return embed.NewDummyEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
