package usecase

import (
	"sort"

	"github.com/regulens/regulens/internal/core/domain"
)

// normalizeHits rescales one score family to [0,1] via min-max. A
// single-entry or constant list maps positive scores to 1 so the family
// still contributes to fusion.
func normalizeHits(hits []domain.ChunkHit) map[string]float64 {
	if len(hits) == 0 {
		return map[string]float64{}
	}

	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	out := make(map[string]float64, len(hits))
	scoreRange := maxScore - minScore
	for _, hit := range hits {
		switch {
		case scoreRange > 0:
			out[hit.ChunkID] = (hit.Score - minScore) / scoreRange
		case hit.Score > 0:
			out[hit.ChunkID] = 1
		default:
			out[hit.ChunkID] = 0
		}
	}
	return out
}

// fuseWeighted blends both families with fused = alpha*vector +
// (1-alpha)*lexical. Ties within epsilon prefer the higher lexical
// score, favoring exact-term matches; remaining ties order by chunk ID
// so identical inputs always rank identically.
func fuseWeighted(lexical, vector []domain.ChunkHit, alpha, epsilon float64) []domain.SearchResult {
	lex := normalizeHits(lexical)
	vec := normalizeHits(vector)

	seen := make(map[string]struct{}, len(lex)+len(vec))
	out := make([]domain.SearchResult, 0, len(lex)+len(vec))
	appendChunk := func(chunkID string) {
		if _, ok := seen[chunkID]; ok {
			return
		}
		seen[chunkID] = struct{}{}
		out = append(out, domain.SearchResult{
			ChunkID:      chunkID,
			LexicalScore: lex[chunkID],
			VectorScore:  vec[chunkID],
			FusedScore:   alpha*vec[chunkID] + (1-alpha)*lex[chunkID],
		})
	}
	for _, hit := range lexical {
		appendChunk(hit.ChunkID)
	}
	for _, hit := range vector {
		appendChunk(hit.ChunkID)
	}

	sortResults(out, epsilon)
	return out
}

// fuseSingle ranks by one surviving family during degraded mode; the
// normalized family score becomes the fused score unchanged so the
// ordering stays correct for that family.
func fuseSingle(hits []domain.ChunkHit, lexical bool, epsilon float64) []domain.SearchResult {
	normalized := normalizeHits(hits)
	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := domain.SearchResult{ChunkID: hit.ChunkID, FusedScore: normalized[hit.ChunkID]}
		if lexical {
			result.LexicalScore = normalized[hit.ChunkID]
		} else {
			result.VectorScore = normalized[hit.ChunkID]
		}
		out = append(out, result)
	}
	sortResults(out, epsilon)
	return out
}

func sortResults(results []domain.SearchResult, epsilon float64) {
	sort.SliceStable(results, func(i, j int) bool {
		di := results[i].FusedScore - results[j].FusedScore
		if di > epsilon {
			return true
		}
		if di < -epsilon {
			return false
		}
		if results[i].LexicalScore != results[j].LexicalScore {
			return results[i].LexicalScore > results[j].LexicalScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
