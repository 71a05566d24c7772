package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/embed"
	"github.com/modalmesh/groundrag/pkg/index"
	"github.com/modalmesh/groundrag/pkg/logging"
	"github.com/modalmesh/groundrag/pkg/retry"
)

// ErrEmptyResult signals that no candidate cleared the score threshold.
// Not fatal: the synthesizer answers without grounding, explicitly flagged.
var ErrEmptyResult = errors.New("no results above score threshold")

// Options tune ranking. Zero values fall back to defaults.
type Options struct {
	TopK int
	// TopNMultiplier sizes the candidate pool requested from the store
	// before re-ranking: top_n = TopK * TopNMultiplier.
	TopNMultiplier int
	VectorWeight   float64
	LexicalWeight  float64
	ScoreThreshold float64
	// Epsilon is the blended-score distance within which two candidates
	// count as tied and modality diversity breaks the tie.
	Epsilon float64
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.TopNMultiplier <= 1 {
		o.TopNMultiplier = 3
	}
	if o.VectorWeight <= 0 && o.LexicalWeight <= 0 {
		o.VectorWeight, o.LexicalWeight = 0.7, 0.3
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 0.05
	}
	return o
}

// Retriever runs the query side of the pipeline: embed, hybrid search,
// dedupe, re-rank across modalities, truncate.
type Retriever struct {
	embedder embed.Embedder
	store    index.Searcher
	opts     Options
	policy   retry.Policy
	log      *logging.Logger
}

func NewRetriever(embedder embed.Embedder, store index.Searcher, opts Options, policy retry.Policy, log *logging.Logger) *Retriever {
	if log == nil {
		log = logging.Nop()
	}
	return &Retriever{embedder: embedder, store: store, opts: opts.withDefaults(), policy: policy, log: log}
}

// Retrieve returns at most TopK deduplicated evidence items for the query.
// modality narrows the search when non-empty.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, modality chunk.Modality) ([]EvidenceItem, error) {
	var queryEmbedding []float32
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var embErr error
		queryEmbedding, embErr = r.embedder.Embed(ctx, queryText)
		return embErr
	})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	if err := embed.CheckDim(r.embedder, queryEmbedding); err != nil {
		return nil, err
	}

	topN := r.opts.TopK * r.opts.TopNMultiplier
	var hits []index.Hit
	err = r.policy.Do(ctx, func(ctx context.Context) error {
		var searchErr error
		hits, searchErr = r.store.Search(ctx, index.Query{
			Embedding: queryEmbedding,
			Text:      queryText,
			Limit:     topN,
			Modality:  modality,
		})
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	candidates := r.blend(dedupe(hits))
	if len(candidates) == 0 {
		return nil, ErrEmptyResult
	}

	ranked := diversityRank(candidates, r.opts.Epsilon)
	if len(ranked) > r.opts.TopK {
		ranked = ranked[:r.opts.TopK]
	}
	r.log.Debug("retrieval complete", "query_len", len(queryText), "candidates", len(candidates), "returned", len(ranked))
	return ranked, nil
}

func dedupe(hits []index.Hit) []index.Hit {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, hit := range hits {
		if _, ok := seen[hit.Chunk.ContentID]; ok {
			continue
		}
		seen[hit.Chunk.ContentID] = struct{}{}
		out = append(out, hit)
	}
	return out
}

// blend computes the weighted primary score and drops candidates below the
// threshold. Lexical scores are normalized by the pool maximum so vector and
// lexical legs share a scale.
func (r *Retriever) blend(hits []index.Hit) []EvidenceItem {
	maxLexical := 0.0
	for _, hit := range hits {
		if hit.LexicalScore > maxLexical {
			maxLexical = hit.LexicalScore
		}
	}
	items := make([]EvidenceItem, 0, len(hits))
	for _, hit := range hits {
		lexical := hit.LexicalScore
		if maxLexical > 0 {
			lexical /= maxLexical
		}
		score := r.opts.VectorWeight*hit.VectorScore + r.opts.LexicalWeight*lexical
		if score < r.opts.ScoreThreshold {
			continue
		}
		items = append(items, EvidenceItem{Chunk: hit.Chunk, Score: score})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Chunk.ContentID < items[j].Chunk.ContentID
	})
	return items
}

// diversityRank greedily reorders score-sorted candidates: whenever the next
// pick ties with others within epsilon, the candidate whose modality is
// least represented so far wins, so one modality cannot crowd out the rest.
func diversityRank(items []EvidenceItem, epsilon float64) []EvidenceItem {
	remaining := append([]EvidenceItem(nil), items...)
	picked := make([]EvidenceItem, 0, len(remaining))
	counts := map[chunk.Modality]int{}

	for len(remaining) > 0 {
		best := 0
		// The tie window is anchored to the leading score; measuring against
		// the running best would let successive promotions drift the window
		// below epsilon of the leader.
		top := remaining[0].Score
		for i := 1; i < len(remaining); i++ {
			if top-remaining[i].Score > epsilon {
				break
			}
			if counts[remaining[i].Chunk.Modality] < counts[remaining[best].Chunk.Modality] {
				best = i
			}
		}
		pick := remaining[best]
		picked = append(picked, pick)
		counts[pick.Chunk.Modality]++
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return picked
}
