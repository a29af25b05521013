package index

import (
	"context"
	"fmt"
	"time"

	"github.com/runeset/semidx/internal/chunk"
	"github.com/runeset/semidx/internal/config"
	"github.com/runeset/semidx/internal/embed"
	"github.com/runeset/semidx/internal/vectorstore"
)

// SearchResult carries ranked hits plus timing for the two phases of a
// query.
type SearchResult struct {
	Query      string
	Hits       []vectorstore.Hit
	EmbedTime  time.Duration
	SearchTime time.Duration
}

// Search embeds the query and runs a similarity search. Hits below
// minScore are dropped; results come back ordered by descending score. An
// empty index yields zero hits, not an error.
func (s *Service) Search(ctx context.Context, query string, topK int, minScore float32) (*SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	embedStart := time.Now()
	vectors, err := s.backend.Embed(ctx, []string{query}, embed.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors for one input", len(vectors))
	}
	embedTime := time.Since(embedStart)

	searchStart := time.Now()
	hits, err := s.store.Search(ctx, vectors[0], topK, s.backend.Model())
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	searchTime := time.Since(searchStart)

	// The floor applies at every value, zero included: anticorrelated hits
	// have negative scores and must not pass a 0 threshold.
	kept := hits[:0]
	for _, hit := range hits {
		if hit.Score >= minScore {
			kept = append(kept, hit)
		}
	}
	hits = kept

	return &SearchResult{
		Query:      query,
		Hits:       hits,
		EmbedTime:  embedTime,
		SearchTime: searchTime,
	}, nil
}

func newChunkerFromConfig(cfg *config.Config) *chunk.Chunker {
	return chunk.NewChunker(cfg.Chunking.MaxTokens, cfg.Chunking.MinTokens, cfg.Chunking.OverlapRatio)
}
