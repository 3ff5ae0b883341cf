package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/regulens/regulens/internal/core/domain"
)

// Splitter cuts source text into overlapping rune windows. The overlap
// keeps statements spanning a chunk boundary retrievable from either
// side. A paragraph longer than HardCeiling runes is rejected outright:
// truncating it would silently drop content the answer may cite.
type Splitter struct {
	ChunkSize   int
	Overlap     int
	HardCeiling int
}

func NewSplitter(chunkSize, overlap, hardCeiling int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if hardCeiling < chunkSize {
		hardCeiling = chunkSize * 8
	}
	return &Splitter{
		ChunkSize:   chunkSize,
		Overlap:     overlap,
		HardCeiling: hardCeiling,
	}
}

// SplitSource produces context-prefixed, fingerprinted chunks for a
// source document. Chunk IDs are derived from the content fingerprint,
// not the position, so a chunk that shifts position across re-indexing
// runs keeps its identity and can never collide with a fresh chunk
// landing at its old slot.
func (s *Splitter) SplitSource(doc domain.SourceDocument) ([]domain.Chunk, error) {
	if err := s.checkCeiling(doc.Text); err != nil {
		return nil, err
	}

	prefix := contextPrefix(doc)
	pieces := s.split(doc.Text)
	out := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		print := Fingerprint(piece)
		out = append(out, domain.Chunk{
			ID:            chunkID(doc.SourceID, print),
			SourceID:      doc.SourceID,
			Text:          piece,
			ContextPrefix: prefix,
			Fingerprint:   print,
			Position:      i,
		})
	}
	return out, nil
}

func chunkID(sourceID, fingerprint string) string {
	return fmt.Sprintf("%s:%s", sourceID, fingerprint[:12])
}

func (s *Splitter) split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func (s *Splitter) checkCeiling(text string) error {
	for _, paragraph := range strings.Split(text, "\n\n") {
		if n := len([]rune(strings.TrimSpace(paragraph))); n > s.HardCeiling {
			return domain.WrapError(
				domain.ErrChunkTooLarge,
				"split source",
				fmt.Errorf("paragraph of %d runes exceeds ceiling %d", n, s.HardCeiling),
			)
		}
	}
	return nil
}

// Fingerprint is a stable content hash over normalized chunk text, used
// to skip re-embedding unchanged chunks across re-indexing runs.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func contextPrefix(doc domain.SourceDocument) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return ""
	}
	return fmt.Sprintf("[%s]", title)
}
