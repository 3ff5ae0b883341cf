package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/core/ports"
	"github.com/regulens/regulens/internal/infrastructure/cache"
	"github.com/regulens/regulens/internal/infrastructure/chunking"
)

type IndexConfig struct {
	// EmbedWorkers bounds concurrent embedding calls. The work is
	// I/O-bound against the inference service, so more than one worker
	// overlaps round-trips, and a handful is enough to saturate a
	// single-node service without flooding it. Default 4.
	EmbedWorkers int
	EmbedBatch   int
}

// IndexSourceUseCase turns extracted source text into indexed chunks:
// split, prefix, fingerprint, dedupe against the previous run, embed
// what changed, and supersede what disappeared.
type IndexSourceUseCase struct {
	splitter *chunking.Splitter
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	embedder ports.Embedder
	cache    ports.Cache
	cfg      IndexConfig
}

func NewIndexSourceUseCase(
	splitter *chunking.Splitter,
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	embedder ports.Embedder,
	cacheManager ports.Cache,
	cfg IndexConfig,
) *IndexSourceUseCase {
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 16
	}
	return &IndexSourceUseCase{
		splitter: splitter,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		cache:    cacheManager,
		cfg:      cfg,
	}
}

func (uc *IndexSourceUseCase) IndexSource(ctx context.Context, doc domain.SourceDocument) (*domain.IndexSummary, error) {
	if strings.TrimSpace(doc.SourceID) == "" || strings.TrimSpace(doc.Collection) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index source", errors.New("source_id and collection are required"))
	}

	// Identical upload short-circuit: the source-text tier remembers
	// the full content fingerprint per source.
	sourceKey := cache.Key("source", doc.Collection, doc.SourceID)
	contentPrint := chunking.Fingerprint(doc.Text)
	if prev, ok := uc.cache.Get(domain.TierSourceText, sourceKey); ok && string(prev) == contentPrint {
		return &domain.IndexSummary{SourceID: doc.SourceID, SkippedUnchanged: true}, nil
	}

	chunks, err := uc.splitter.SplitSource(doc)
	if err != nil {
		return nil, err
	}

	existing, err := uc.lexical.SourceFingerprints(ctx, doc.Collection, doc.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load existing fingerprints: %w", err)
	}

	fresh := make([]domain.Chunk, 0, len(chunks))
	reused := 0
	seen := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		// Identical windows within one document share an ID; index once.
		if _, dup := seen[chunk.Fingerprint]; dup {
			continue
		}
		seen[chunk.Fingerprint] = struct{}{}
		if _, ok := existing[chunk.Fingerprint]; ok {
			reused++
			continue
		}
		fresh = append(fresh, chunk)
	}

	// Chunks whose fingerprint vanished are superseded, not mutated.
	removed := make([]string, 0)
	for fingerprint, chunkID := range existing {
		if _, ok := seen[fingerprint]; !ok {
			removed = append(removed, chunkID)
		}
	}

	if len(fresh) > 0 || len(removed) > 0 {
		// Any chunk-set change stales fused rankings and cached
		// embeddings for the collection. Invalidate before embedding so
		// vectors computed in this run survive.
		uc.cache.InvalidateCollection(doc.Collection)
	}

	vectors, err := uc.embedChunks(ctx, doc.Collection, fresh)
	if err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		if err := uc.lexical.RemoveChunks(ctx, doc.Collection, removed); err != nil {
			return nil, fmt.Errorf("remove superseded chunks from lexical index: %w", err)
		}
		if err := uc.vector.Remove(ctx, doc.Collection, removed); err != nil {
			return nil, fmt.Errorf("remove superseded chunks from vector index: %w", err)
		}
	}
	if len(fresh) > 0 {
		if err := uc.lexical.IndexChunks(ctx, doc.Collection, fresh); err != nil {
			return nil, fmt.Errorf("index chunks lexically: %w", err)
		}
		if err := uc.vector.Upsert(ctx, doc.Collection, vectors); err != nil {
			return nil, fmt.Errorf("upsert chunk vectors: %w", err)
		}
	}

	uc.cache.Set(domain.TierSourceText, sourceKey, []byte(contentPrint))

	slog.Info("source_indexed",
		"collection", doc.Collection,
		"source_id", doc.SourceID,
		"indexed", len(fresh),
		"reused", reused,
		"removed", len(removed),
	)
	return &domain.IndexSummary{
		SourceID:      doc.SourceID,
		ChunksIndexed: len(fresh),
		ChunksReused:  reused,
		ChunksRemoved: len(removed),
	}, nil
}

// embedChunks computes vectors on a bounded worker pool, batching
// chunks per inference call and reusing the embedding tier for chunk
// text already embedded under the same fingerprint.
func (uc *IndexSourceUseCase) embedChunks(ctx context.Context, collection string, chunks []domain.Chunk) ([]domain.ChunkVector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]domain.ChunkVector, len(chunks))
	var mu sync.Mutex

	pending := make([]domain.Chunk, 0, len(chunks))
	pendingIdx := make([]int, 0, len(chunks))
	for i, chunk := range chunks {
		key := cache.ScopedKey(collection, "chunk-embedding", chunk.Fingerprint)
		if payload, ok := uc.cache.Get(domain.TierEmbedding, key); ok {
			var vector []float32
			if err := json.Unmarshal(payload, &vector); err != nil {
				corruption := domain.WrapError(domain.ErrCacheCorruption, "chunk embedding", err)
				slog.Warn("cache_entry_corrupted", "tier", string(domain.TierEmbedding), "key", key, "error", corruption)
				uc.cache.Delete(domain.TierEmbedding, key)
			} else {
				out[i] = domain.ChunkVector{ChunkID: chunk.ID, Vector: vector}
				continue
			}
		}
		pending = append(pending, chunk)
		pendingIdx = append(pendingIdx, i)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.cfg.EmbedWorkers)

	for start := 0; start < len(pending); start += uc.cfg.EmbedBatch {
		end := start + uc.cfg.EmbedBatch
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		indices := pendingIdx[start:end]

		group.Go(func() error {
			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.IndexedText()
			}
			vectors, err := uc.embedder.Embed(groupCtx, texts)
			if err != nil {
				return fmt.Errorf("embed chunk batch: %w", err)
			}
			if len(vectors) != len(batch) {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed chunk batch",
					fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			for i, chunk := range batch {
				out[indices[i]] = domain.ChunkVector{ChunkID: chunk.ID, Vector: vectors[i]}
				if payload, err := json.Marshal(vectors[i]); err == nil {
					uc.cache.Set(domain.TierEmbedding, cache.ScopedKey(collection, "chunk-embedding", chunk.Fingerprint), payload)
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
