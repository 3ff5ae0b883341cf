package domain

// SourceDocument is what the out-of-scope extraction collaborator hands
// to the chunk indexer: already plain text plus identity.
type SourceDocument struct {
	SourceID   string `json:"source_id"`
	Collection string `json:"collection"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// IndexSummary reports what one indexing run actually did. Unchanged
// fingerprints skip re-embedding; superseded chunks are removed.
type IndexSummary struct {
	SourceID         string `json:"source_id"`
	ChunksIndexed    int    `json:"chunks_indexed"`
	ChunksReused     int    `json:"chunks_reused"`
	ChunksRemoved    int    `json:"chunks_removed"`
	SkippedUnchanged bool   `json:"skipped_unchanged"`
}

type CacheTier string

const (
	TierSourceText  CacheTier = "source_text"
	TierEmbedding   CacheTier = "embedding"
	TierQueryResult CacheTier = "query_result"
)
