package domain

// Chunk is the retrieval unit: one overlapping window of source text
// under its document context prefix. IDs are positional and stable, so
// re-indexing unchanged content keeps chunk identity.
type Chunk struct {
	ID            string `json:"id"`
	SourceID      string `json:"source_id"`
	Text          string `json:"text"`
	ContextPrefix string `json:"context_prefix,omitempty"`
	Fingerprint   string `json:"fingerprint"`
	Position      int    `json:"position"`
}

// IndexedText is the form both indices, the embedder and the grounding
// checks agree on: the chunk text under its context prefix.
func (c Chunk) IndexedText() string {
	if c.ContextPrefix == "" {
		return c.Text
	}
	return c.ContextPrefix + "\n" + c.Text
}

// ChunkVector pairs a chunk with its embedding.
type ChunkVector struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}
