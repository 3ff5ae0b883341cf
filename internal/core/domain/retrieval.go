package domain

// Query describes one retrieval request against a collection.
type Query struct {
	Text       string `json:"text"`
	Collection string `json:"collection"`
	TopK       int    `json:"top_k"`
	SourceID   string `json:"source_id,omitempty"`
}

// ChunkHit is a single-index ranking entry before fusion.
type ChunkHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// SearchResult carries both score families plus the fused value.
// FusedScore is always within [0,1] regardless of fusion strategy.
type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	FusedScore   float64 `json:"fused_score"`
}

// RankedResults is the hybrid search output: non-increasing by
// FusedScore, at most TopK entries. Degraded is set whenever one index
// branch was unavailable or timed out; partial results are never
// returned silently.
type RankedResults struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded"`
}

// Answer is the generated response plus the chunks it was grounded on.
type Answer struct {
	Text     string  `json:"text"`
	Cited    []Chunk `json:"cited"`
	Degraded bool    `json:"degraded"`
}
