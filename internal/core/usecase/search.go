package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/core/ports"
	"github.com/regulens/regulens/internal/infrastructure/cache"
)

// SearchMetrics is implemented by the metrics collaborator.
type SearchMetrics interface {
	ObserveSearch(mode string, seconds float64)
}

type HybridSearchConfig struct {
	// Alpha is the fusion blend weight on the vector family. The
	// default 0.6 slightly favors semantic similarity over exact terms;
	// it is a product-tuning knob, not a derived constant.
	Alpha float64
	// Epsilon is the fused-score tie window. Keep it tiny (1e-9 by
	// default) so the tie-break only separates exact ties and the
	// ranking stays non-increasing by fused score.
	Epsilon       float64
	TopK          int
	Candidates    int
	BranchTimeout time.Duration
}

// HybridSearchUseCase issues lexical and vector sub-queries in
// parallel, fuses the score families, and caches fused rankings per
// (query, collection, top_k, alpha).
type HybridSearchUseCase struct {
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	embedder ports.Embedder
	cache    ports.Cache
	metrics  SearchMetrics
	cfg      HybridSearchConfig
}

func NewHybridSearchUseCase(
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	embedder ports.Embedder,
	cacheManager ports.Cache,
	metrics SearchMetrics,
	cfg HybridSearchConfig,
) *HybridSearchUseCase {
	return &HybridSearchUseCase{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		cache:    cacheManager,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// degradedSearchError smuggles a degraded ranking through the cache
// compute path so it reaches the caller without being cached as
// authoritative.
type degradedSearchError struct {
	payload []byte
}

func (e *degradedSearchError) Error() string { return "degraded search result" }

func (uc *HybridSearchUseCase) Search(ctx context.Context, query domain.Query) (*domain.RankedResults, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", errors.New("empty query text"))
	}
	topK := query.TopK
	if topK <= 0 {
		topK = uc.cfg.TopK
	}

	start := time.Now()
	key := uc.cacheKey(query, topK)

	ranked, err := uc.cachedSearch(ctx, key, query, topK)
	if err != nil {
		return nil, err
	}

	mode := "hybrid"
	if ranked.Degraded {
		mode = "degraded"
	}
	if uc.metrics != nil {
		uc.metrics.ObserveSearch(mode, time.Since(start).Seconds())
	}
	return ranked, nil
}

func (uc *HybridSearchUseCase) cachedSearch(ctx context.Context, key string, query domain.Query, topK int) (*domain.RankedResults, error) {
	for attempt := 0; attempt < 2; attempt++ {
		payload, err := uc.cache.GetOrCompute(ctx, domain.TierQueryResult, key, func(ctx context.Context) ([]byte, error) {
			return uc.executeSearch(ctx, query, topK)
		})

		degraded := false
		if err != nil {
			var degradedErr *degradedSearchError
			if !errors.As(err, &degradedErr) {
				return nil, err
			}
			payload = degradedErr.payload
			degraded = true
		}

		var ranked domain.RankedResults
		if unmarshalErr := json.Unmarshal(payload, &ranked); unmarshalErr != nil {
			corruption := domain.WrapError(domain.ErrCacheCorruption, "hybrid search", unmarshalErr)
			slog.Warn("cache_entry_corrupted", "tier", string(domain.TierQueryResult), "key", key, "error", corruption)
			uc.cache.Delete(domain.TierQueryResult, key)
			continue
		}
		ranked.Degraded = ranked.Degraded || degraded
		return &ranked, nil
	}
	return nil, domain.WrapError(domain.ErrCacheCorruption, "hybrid search", errors.New("recompute after eviction failed"))
}

// executeSearch runs both index branches concurrently and fuses them.
// It waits for both branches (each under its own timeout) and never
// proceeds silently with partial results: a lost branch flags the
// ranking as degraded, and losing both is an error.
func (uc *HybridSearchUseCase) executeSearch(ctx context.Context, query domain.Query, topK int) ([]byte, error) {
	candidates := uc.cfg.Candidates
	if candidates < topK {
		candidates = topK
	}

	type branch struct {
		hits []domain.ChunkHit
		err  error
	}
	lexCh := make(chan branch, 1)
	vecCh := make(chan branch, 1)

	go func() {
		branchCtx, cancel := uc.branchContext(ctx)
		defer cancel()
		hits, err := uc.lexical.Search(branchCtx, query.Collection, query.Text, candidates)
		lexCh <- branch{hits: hits, err: err}
	}()
	go func() {
		branchCtx, cancel := uc.branchContext(ctx)
		defer cancel()
		hits, err := uc.vectorBranch(branchCtx, query, candidates)
		vecCh <- branch{hits: hits, err: err}
	}()

	lex, vec := <-lexCh, <-vecCh
	if lex.err != nil && vec.err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "hybrid search", errors.Join(lex.err, vec.err))
	}

	var results []domain.SearchResult
	degraded := false
	switch {
	case vec.err != nil:
		slog.Warn("search_branch_unavailable", "component", "vector_index", "collection", query.Collection, "error", vec.err)
		results = fuseSingle(lex.hits, true, uc.cfg.Epsilon)
		degraded = true
	case lex.err != nil:
		slog.Warn("search_branch_unavailable", "component", "lexical_index", "collection", query.Collection, "error", lex.err)
		results = fuseSingle(vec.hits, false, uc.cfg.Epsilon)
		degraded = true
	default:
		results = fuseWeighted(lex.hits, vec.hits, uc.cfg.Alpha, uc.cfg.Epsilon)
	}

	ranked := domain.RankedResults{
		Results:  trimResults(results, topK),
		Degraded: degraded,
	}
	payload, err := json.Marshal(ranked)
	if err != nil {
		return nil, fmt.Errorf("marshal ranked results: %w", err)
	}
	if degraded {
		// A recovered index must be able to serve the full ranking, so
		// degraded output bypasses the cache.
		return nil, &degradedSearchError{payload: payload}
	}
	return payload, nil
}

func (uc *HybridSearchUseCase) vectorBranch(ctx context.Context, query domain.Query, candidates int) ([]domain.ChunkHit, error) {
	queryVector, err := uc.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.vector.Search(ctx, query.Collection, queryVector, candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// embedQuery caches query vectors in the embedding tier; repeated
// queries skip the inference round-trip entirely.
func (uc *HybridSearchUseCase) embedQuery(ctx context.Context, query domain.Query) ([]float32, error) {
	key := cache.ScopedKey(query.Collection, "query-embedding", normalizeQueryText(query.Text))
	payload, err := uc.cache.GetOrCompute(ctx, domain.TierEmbedding, key, func(ctx context.Context) ([]byte, error) {
		vector, err := uc.embedder.EmbedQuery(ctx, query.Text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vector)
	})
	if err != nil {
		return nil, err
	}

	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		uc.cache.Delete(domain.TierEmbedding, key)
		return nil, domain.WrapError(domain.ErrCacheCorruption, "query embedding", err)
	}
	return vector, nil
}

func (uc *HybridSearchUseCase) branchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.BranchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.BranchTimeout)
}

func (uc *HybridSearchUseCase) cacheKey(query domain.Query, topK int) string {
	return cache.ScopedKey(
		query.Collection,
		"search",
		normalizeQueryText(query.Text),
		strconv.Itoa(topK),
		strconv.FormatFloat(uc.cfg.Alpha, 'f', -1, 64),
	)
}

func normalizeQueryText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
