package ports

import (
	"context"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
)

// LexicalIndex is the keyword ranking side of hybrid retrieval. It also
// acts as the chunk registry: indices are rebuildable from source, so
// chunk text and fingerprints live with the lexical postings rather
// than in durable storage.
type LexicalIndex interface {
	IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk) error
	RemoveChunks(ctx context.Context, collection string, chunkIDs []string) error
	Search(ctx context.Context, collection, queryText string, limit int) ([]domain.ChunkHit, error)
	ChunksByID(ctx context.Context, collection string, chunkIDs []string) ([]domain.Chunk, error)
	SourceFingerprints(ctx context.Context, collection, sourceID string) (map[string]string, error)
}

// VectorIndex is the nearest-neighbor similarity side. The algorithm is
// an implementation detail; only ranking by similarity is contractual.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, vectors []domain.ChunkVector) error
	Remove(ctx context.Context, collection string, chunkIDs []string) error
	Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.ChunkHit, error)
}

// Embedder computes vectors via the external inference collaborator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the grounded answer text.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.Chunk) (string, error)
}

// Cache is the three-tier cache manager. Values are opaque bytes; a
// tier-level deserialization failure is reported as corruption by the
// caller, which then recomputes through GetOrCompute.
type Cache interface {
	Get(tier domain.CacheTier, key string) ([]byte, bool)
	Set(tier domain.CacheTier, key string, value []byte)
	Delete(tier domain.CacheTier, key string)
	GetOrCompute(ctx context.Context, tier domain.CacheTier, key string, compute func(context.Context) ([]byte, error)) ([]byte, error)
	InvalidateCollection(collection string)
}

// AnalysisStore persists analysis records.
type AnalysisStore interface {
	Create(ctx context.Context, rec *domain.AnalysisRecord) error
	GetByID(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus) error
}

// ReviewStore persists review tasks and feedback. Status changes are
// compare-and-swap on the expected current status so concurrent
// reviewers cannot double-claim.
type ReviewStore interface {
	CreateTask(ctx context.Context, task *domain.ReviewTask) error
	GetTask(ctx context.Context, taskID string) (*domain.ReviewTask, error)
	NextClaimable(ctx context.Context) (*domain.ReviewTask, error)
	AssignTask(ctx context.Context, taskID, reviewerID string, from domain.ReviewStatus) error
	TransitionTask(ctx context.Context, taskID string, from, to domain.ReviewStatus) error
	ListStale(ctx context.Context, statuses []domain.ReviewStatus, olderThan time.Time) ([]domain.ReviewTask, error)
	AppendFeedback(ctx context.Context, fb *domain.Feedback) error
	ArchiveTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

// TaskBus moves scheduled tasks from the request path to the worker.
type TaskBus interface {
	PublishTask(ctx context.Context, task domain.ScheduledTask) error
	SubscribeTasks(ctx context.Context, handler func(context.Context, domain.ScheduledTask) error) error
}

// ReviewerNotifier delivers review notifications. Implementations must
// deduplicate by (task id, attempt).
type ReviewerNotifier interface {
	NotifyReviewer(ctx context.Context, task domain.ScheduledTask) error
}
