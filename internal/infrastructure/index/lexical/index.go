// Package lexical implements the keyword side of hybrid retrieval: an
// in-memory inverted index with BM25 ranking. It doubles as the chunk
// registry, since indices are rebuilt from source rather than persisted.
package lexical

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/regulens/regulens/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type posting struct {
	chunkID string
	freq    int
}

type collectionIndex struct {
	postings map[string][]posting
	chunks   map[string]domain.Chunk
	docLens  map[string]int
	totalLen int
	bySource map[string]map[string]string // sourceID -> fingerprint -> chunkID
}

func newCollectionIndex() *collectionIndex {
	return &collectionIndex{
		postings: make(map[string][]posting),
		chunks:   make(map[string]domain.Chunk),
		docLens:  make(map[string]int),
		bySource: make(map[string]map[string]string),
	}
}

// Index is safe for concurrent readers and writers; queries take the
// read lock only.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collectionIndex
}

func New() *Index {
	return &Index{collections: make(map[string]*collectionIndex)}
}

func (ix *Index) IndexChunks(_ context.Context, collection string, chunks []domain.Chunk) error {
	if strings.TrimSpace(collection) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "lexical index", fmt.Errorf("empty collection"))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, ok := ix.collections[collection]
	if !ok {
		col = newCollectionIndex()
		ix.collections[collection] = col
	}

	for _, chunk := range chunks {
		col.removeLocked(chunk.ID)
		tokens := Tokenize(chunk.IndexedText())
		if len(tokens) == 0 {
			continue
		}

		freq := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freq[token]++
		}
		for token, n := range freq {
			col.postings[token] = append(col.postings[token], posting{chunkID: chunk.ID, freq: n})
		}

		col.chunks[chunk.ID] = chunk
		col.docLens[chunk.ID] = len(tokens)
		col.totalLen += len(tokens)

		prints, ok := col.bySource[chunk.SourceID]
		if !ok {
			prints = make(map[string]string)
			col.bySource[chunk.SourceID] = prints
		}
		prints[chunk.Fingerprint] = chunk.ID
	}
	return nil
}

func (ix *Index) RemoveChunks(_ context.Context, collection string, chunkIDs []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, ok := ix.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range chunkIDs {
		col.removeLocked(id)
	}
	return nil
}

func (ix *Index) Search(_ context.Context, collection, queryText string, limit int) ([]domain.ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	col, ok := ix.collections[collection]
	if !ok || len(col.chunks) == 0 {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "lexical search", fmt.Errorf("collection %q has no indexed chunks", collection))
	}

	scores := make(map[string]float64)
	docCount := float64(len(col.chunks))
	avgLen := float64(col.totalLen) / docCount

	for _, token := range Tokenize(queryText) {
		plist := col.postings[token]
		if len(plist) == 0 {
			continue
		}
		idf := idf(docCount, float64(len(plist)))
		for _, p := range plist {
			tf := float64(p.freq)
			norm := 1 - bm25B + bm25B*(float64(col.docLens[p.chunkID])/avgLen)
			scores[p.chunkID] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
		}
	}

	out := make([]domain.ChunkHit, 0, len(scores))
	for chunkID, score := range scores {
		out = append(out, domain.ChunkHit{ChunkID: chunkID, Score: score})
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

func (ix *Index) ChunksByID(_ context.Context, collection string, chunkIDs []string) ([]domain.Chunk, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	col, ok := ix.collections[collection]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "lexical chunks", fmt.Errorf("unknown collection %q", collection))
	}
	out := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := col.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (ix *Index) SourceFingerprints(_ context.Context, collection, sourceID string) (map[string]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	col, ok := ix.collections[collection]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(col.bySource[sourceID]))
	for fingerprint, chunkID := range col.bySource[sourceID] {
		out[fingerprint] = chunkID
	}
	return out, nil
}

func (c *collectionIndex) removeLocked(chunkID string) {
	chunk, ok := c.chunks[chunkID]
	if !ok {
		return
	}

	for token, plist := range c.postings {
		kept := plist[:0]
		for _, p := range plist {
			if p.chunkID != chunkID {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(c.postings, token)
			continue
		}
		c.postings[token] = kept
	}

	c.totalLen -= c.docLens[chunkID]
	delete(c.docLens, chunkID)
	delete(c.chunks, chunkID)
	if prints, ok := c.bySource[chunk.SourceID]; ok {
		delete(prints, chunk.Fingerprint)
		if len(prints) == 0 {
			delete(c.bySource, chunk.SourceID)
		}
	}
}

func idf(docCount, docFreq float64) float64 {
	x := (docCount - docFreq + 0.5) / (docFreq + 0.5)
	if x < 0 {
		x = 0
	}
	// Log1p smoothing keeps terms present in most chunks non-negative.
	return math.Log1p(x)
}

// Tokenize lowercases and splits on non-alphanumeric runes, matching
// the tokenization used for grounding checks so lexical hits and
// overlap ratios agree on term boundaries.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
