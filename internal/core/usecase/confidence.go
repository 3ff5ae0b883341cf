package usecase

import (
	"strings"
	"time"
	"unicode"

	"github.com/regulens/regulens/internal/core/domain"
)

// ConfidenceMetrics is implemented by the metrics collaborator.
type ConfidenceMetrics interface {
	ObserveConfidence(seconds float64)
}

type ConfidenceConfig struct {
	// HighThreshold gates auto-approval. 0.85 by default: high enough
	// that an unsupported sentence or two pushes the answer to review.
	HighThreshold float64
	// SafetyFloor flags hallucination risk for reviewer visibility.
	// 0.50 by default: below it, less than half the combined signal
	// supports the answer.
	SafetyFloor float64
	// RetrievalWeight and GroundingWeight combine the mean fused score
	// of cited chunks with the token-overlap grounding ratio. Grounding
	// carries more weight (0.6 vs 0.4) because retrieval strength alone
	// says nothing about what the generator actually wrote.
	RetrievalWeight float64
	GroundingWeight float64
	// NumericPenalty is subtracted per ungrounded numeric claim, capped
	// at NumericPenaltyCap. Fabricated figures are the costliest
	// hallucination in regulatory answers.
	NumericPenalty    float64
	NumericPenaltyCap float64
	// BorderlineBand softens priority near the threshold: a gated
	// answer within this band below HighThreshold queues as low
	// priority.
	BorderlineBand float64
}

// ConfidenceScorer combines retrieval strength, answer grounding and
// numeric-claim checks into a single confidence in [0,1].
//
// The grounding ratio is a token-overlap heuristic, not a validated
// entailment check: it measures how much of the answer's vocabulary
// appears in the cited chunks, which over-credits paraphrase and
// under-credits synonymy. Treat the score as approximate.
type ConfidenceScorer struct {
	cfg     ConfidenceConfig
	metrics ConfidenceMetrics
}

func NewConfidenceScorer(cfg ConfidenceConfig, metrics ConfidenceMetrics) *ConfidenceScorer {
	return &ConfidenceScorer{cfg: cfg, metrics: metrics}
}

// Score evaluates a generated answer against the chunks it cited.
func (s *ConfidenceScorer) Score(results []domain.SearchResult, answer string, cited []domain.Chunk) domain.Assessment {
	start := time.Now()

	retrieval := meanFusedScore(results, cited)
	grounding := groundingRatio(answer, cited)
	penalty := s.numericPenalty(answer, cited)

	confidence := s.cfg.RetrievalWeight*retrieval + s.cfg.GroundingWeight*grounding - penalty
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	assessment := domain.Assessment{
		Confidence:        confidence,
		RetrievalScore:    retrieval,
		GroundingRatio:    grounding,
		NumericPenalty:    penalty,
		HallucinationRisk: confidence < s.cfg.SafetyFloor,
		Status:            domain.AnalysisAutoApproved,
	}
	if confidence < s.cfg.HighThreshold {
		assessment.Status = domain.AnalysisPendingReview
	}

	if s.metrics != nil {
		s.metrics.ObserveConfidence(time.Since(start).Seconds())
	}
	return assessment
}

// ReviewPriority maps an assessment to queue priority: high is reserved
// for hallucination risk, borderline scores queue low, the rest medium.
func (s *ConfidenceScorer) ReviewPriority(a domain.Assessment) domain.ReviewPriority {
	switch {
	case a.HallucinationRisk:
		return domain.PriorityHigh
	case a.Confidence >= s.cfg.HighThreshold-s.cfg.BorderlineBand:
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

func meanFusedScore(results []domain.SearchResult, cited []domain.Chunk) float64 {
	if len(cited) == 0 {
		return 0
	}
	citedIDs := make(map[string]struct{}, len(cited))
	for _, chunk := range cited {
		citedIDs[chunk.ID] = struct{}{}
	}

	var sum float64
	var n int
	for _, result := range results {
		if _, ok := citedIDs[result.ChunkID]; ok {
			sum += result.FusedScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func groundingRatio(answer string, cited []domain.Chunk) float64 {
	answerTokens := tokenSet(answer)
	if len(answerTokens) == 0 {
		return 0
	}
	chunkTokens := make(map[string]struct{})
	for _, chunk := range cited {
		for token := range tokenSet(chunk.IndexedText()) {
			chunkTokens[token] = struct{}{}
		}
	}

	matched := 0
	for token := range answerTokens {
		if _, ok := chunkTokens[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(answerTokens))
}

func (s *ConfidenceScorer) numericPenalty(answer string, cited []domain.Chunk) float64 {
	numbers := numericTokens(answer)
	if len(numbers) == 0 {
		return 0
	}

	citedNumbers := make(map[string]struct{})
	for _, chunk := range cited {
		for _, token := range numericTokens(chunk.IndexedText()) {
			citedNumbers[token] = struct{}{}
		}
	}

	penalty := 0.0
	for _, token := range numbers {
		if _, ok := citedNumbers[token]; !ok {
			penalty += s.cfg.NumericPenalty
		}
	}
	if penalty > s.cfg.NumericPenaltyCap {
		penalty = s.cfg.NumericPenaltyCap
	}
	return penalty
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 32)
	for _, token := range splitAlphaNumLower(s) {
		out[token] = struct{}{}
	}
	return out
}

func numericTokens(s string) []string {
	out := make([]string, 0, 8)
	for _, token := range splitAlphaNumLower(s) {
		allDigits := true
		for _, r := range token {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		if allDigits && token != "" {
			out = append(out, token)
		}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
