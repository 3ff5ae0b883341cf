// Package vector implements the similarity side of hybrid retrieval as
// an exact cosine nearest-neighbor scan per collection. Collections are
// small enough that exact search keeps the ranking contract honest
// without an ANN structure; the port allows swapping one in later.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/regulens/regulens/internal/core/domain"
)

type collectionVectors struct {
	dim     int
	vectors map[string][]float32
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collectionVectors
}

func New() *Index {
	return &Index{collections: make(map[string]*collectionVectors)}
}

func (ix *Index) Upsert(_ context.Context, collection string, vectors []domain.ChunkVector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, ok := ix.collections[collection]
	if !ok {
		col = &collectionVectors{vectors: make(map[string][]float32)}
		ix.collections[collection] = col
	}

	for _, cv := range vectors {
		if len(cv.Vector) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "vector upsert", fmt.Errorf("empty vector for chunk %s", cv.ChunkID))
		}
		if col.dim == 0 {
			col.dim = len(cv.Vector)
		}
		if len(cv.Vector) != col.dim {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"vector upsert",
				fmt.Errorf("dimension mismatch for chunk %s: got %d, collection uses %d", cv.ChunkID, len(cv.Vector), col.dim),
			)
		}
		col.vectors[cv.ChunkID] = cv.Vector
	}
	return nil
}

func (ix *Index) Remove(_ context.Context, collection string, chunkIDs []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, ok := ix.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range chunkIDs {
		delete(col.vectors, id)
	}
	return nil
}

func (ix *Index) Search(_ context.Context, collection string, queryVector []float32, limit int) ([]domain.ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	col, ok := ix.collections[collection]
	if !ok || len(col.vectors) == 0 {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "vector search", fmt.Errorf("collection %q has no vectors", collection))
	}
	if len(queryVector) != col.dim {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"vector search",
			fmt.Errorf("query dimension %d does not match collection dimension %d", len(queryVector), col.dim),
		)
	}

	out := make([]domain.ChunkHit, 0, len(col.vectors))
	for chunkID, vec := range col.vectors {
		out = append(out, domain.ChunkHit{ChunkID: chunkID, Score: cosine(queryVector, vec)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
