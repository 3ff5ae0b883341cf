package ports

import (
	"context"

	"github.com/regulens/regulens/internal/core/domain"
)

// SourceIndexer is the inbound contract for chunking and indexing an
// extracted source document.
type SourceIndexer interface {
	IndexSource(ctx context.Context, doc domain.SourceDocument) (*domain.IndexSummary, error)
}

// SearchService is the inbound contract for hybrid retrieval.
type SearchService interface {
	Search(ctx context.Context, query domain.Query) (*domain.RankedResults, error)
}

// AnalysisService runs the full retrieve-generate-score-gate pipeline.
type AnalysisService interface {
	Analyze(ctx context.Context, collection, sourceID, question string) (*domain.AnalysisRecord, error)
	GetByID(ctx context.Context, analysisID string) (*domain.AnalysisRecord, error)
}

// ReviewService is the inbound contract for the human-review workflow.
type ReviewService interface {
	Claim(ctx context.Context, reviewerID string) (*domain.ReviewTask, error)
	Start(ctx context.Context, taskID, reviewerID string) error
	Complete(ctx context.Context, taskID, decision, notes string) error
	EscalateStale(ctx context.Context) (int, error)
	AbandonExpired(ctx context.Context) (int, error)
}
