package domain

import "time"

type AnalysisStatus string

const (
	AnalysisAutoApproved  AnalysisStatus = "auto_approved"
	AnalysisPendingReview AnalysisStatus = "pending_review"
	AnalysisReviewed      AnalysisStatus = "reviewed"
)

// AnalysisRecord is one confidence-gated analysis run. It terminates as
// auto-approved or, after a human decision, as reviewed.
type AnalysisRecord struct {
	ID                string         `json:"id"`
	SourceID          string         `json:"source_id"`
	Collection        string         `json:"collection"`
	Question          string         `json:"question"`
	Answer            string         `json:"answer"`
	Confidence        float64        `json:"confidence"`
	HallucinationRisk bool           `json:"hallucination_risk"`
	Degraded          bool           `json:"degraded"`
	Status            AnalysisStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Assessment is the confidence scorer output before persistence.
type Assessment struct {
	Confidence        float64        `json:"confidence"`
	RetrievalScore    float64        `json:"retrieval_score"`
	GroundingRatio    float64        `json:"grounding_ratio"`
	NumericPenalty    float64        `json:"numeric_penalty"`
	HallucinationRisk bool           `json:"hallucination_risk"`
	Status            AnalysisStatus `json:"status"`
}
