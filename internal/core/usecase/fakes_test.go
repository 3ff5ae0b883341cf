package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
)

type fakeLexical struct {
	hits    []domain.ChunkHit
	err     error
	chunks  map[string]domain.Chunk
	prints  map[string]string
	indexed [][]domain.Chunk
	removed [][]string
	calls   int
}

func (f *fakeLexical) IndexChunks(_ context.Context, _ string, chunks []domain.Chunk) error {
	f.indexed = append(f.indexed, chunks)
	return nil
}

func (f *fakeLexical) RemoveChunks(_ context.Context, _ string, chunkIDs []string) error {
	f.removed = append(f.removed, chunkIDs)
	return nil
}

func (f *fakeLexical) Search(context.Context, string, string, int) ([]domain.ChunkHit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeLexical) ChunksByID(_ context.Context, _ string, chunkIDs []string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := f.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (f *fakeLexical) SourceFingerprints(context.Context, string, string) (map[string]string, error) {
	if f.prints == nil {
		return map[string]string{}, nil
	}
	return f.prints, nil
}

type fakeVector struct {
	hits     []domain.ChunkHit
	err      error
	upserted [][]domain.ChunkVector
	removed  [][]string
	calls    int
}

func (f *fakeVector) Upsert(_ context.Context, _ string, vectors []domain.ChunkVector) error {
	f.upserted = append(f.upserted, vectors)
	return nil
}

func (f *fakeVector) Remove(_ context.Context, _ string, chunkIDs []string) error {
	f.removed = append(f.removed, chunkIDs)
	return nil
}

func (f *fakeVector) Search(context.Context, string, []float32, int) ([]domain.ChunkHit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeEmbedder struct {
	vector  []float32
	err     error
	batches [][]string
	mu      sync.Mutex
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) GenerateAnswer(context.Context, string, []domain.Chunk) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []domain.ScheduledTask
}

func (f *fakeBus) PublishTask(_ context.Context, task domain.ScheduledTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, task)
	return nil
}

func (f *fakeBus) SubscribeTasks(context.Context, func(context.Context, domain.ScheduledTask) error) error {
	return nil
}

type memAnalysisStore struct {
	mu      sync.Mutex
	records map[string]*domain.AnalysisRecord
}

func newMemAnalysisStore() *memAnalysisStore {
	return &memAnalysisStore{records: make(map[string]*domain.AnalysisRecord)}
}

func (s *memAnalysisStore) Create(_ context.Context, rec *domain.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records[rec.ID] = &copied
	return nil
}

func (s *memAnalysisStore) GetByID(_ context.Context, id string) (*domain.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get analysis", fmt.Errorf("id=%s", id))
	}
	copied := *rec
	return &copied, nil
}

func (s *memAnalysisStore) UpdateStatus(_ context.Context, id string, status domain.AnalysisStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update analysis", fmt.Errorf("id=%s", id))
	}
	rec.Status = status
	return nil
}

// memReviewStore mirrors the postgres repository semantics closely
// enough for usecase tests: CAS transitions and the one-active-task
// invariant.
type memReviewStore struct {
	mu       sync.Mutex
	tasks    map[string]*domain.ReviewTask
	feedback []domain.Feedback
}

func newMemReviewStore() *memReviewStore {
	return &memReviewStore{tasks: make(map[string]*domain.ReviewTask)}
}

func (s *memReviewStore) CreateTask(_ context.Context, task *domain.ReviewTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.AnalysisID == task.AnalysisID && !domain.IsTerminalReview(existing.Status) {
			return domain.WrapError(domain.ErrDuplicateActiveTask, "create review task", fmt.Errorf("analysis_id=%s", task.AnalysisID))
		}
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memReviewStore) GetTask(_ context.Context, taskID string) (*domain.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get review task", fmt.Errorf("id=%s", taskID))
	}
	copied := *task
	return &copied, nil
}

func (s *memReviewStore) NextClaimable(_ context.Context) (*domain.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]*domain.ReviewTask, 0)
	for _, task := range s.tasks {
		if task.Status == domain.ReviewPending || task.Status == domain.ReviewEscalated {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "next claimable", fmt.Errorf("queue empty"))
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := domain.PriorityRank(candidates[i].Priority), domain.PriorityRank(candidates[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	copied := *candidates[0]
	return &copied, nil
}

func (s *memReviewStore) AssignTask(_ context.Context, taskID, reviewerID string, from domain.ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "assign review task", fmt.Errorf("id=%s", taskID))
	}
	if task.Status != from {
		return domain.WrapError(domain.ErrAssignmentConflict, "assign review task", fmt.Errorf("id=%s status=%s", taskID, task.Status))
	}
	task.Status = domain.ReviewAssigned
	task.AssignedReviewerID = reviewerID
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memReviewStore) TransitionTask(_ context.Context, taskID string, from, to domain.ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "transition review task", fmt.Errorf("id=%s", taskID))
	}
	if !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrInvalidTransition, "transition review task", fmt.Errorf("%s -> %s", from, to))
	}
	if task.Status != from {
		return domain.WrapError(domain.ErrAssignmentConflict, "transition review task", fmt.Errorf("id=%s status=%s", taskID, task.Status))
	}
	task.Status = to
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memReviewStore) ListStale(_ context.Context, statuses []domain.ReviewStatus, olderThan time.Time) ([]domain.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[domain.ReviewStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	out := make([]domain.ReviewTask, 0)
	for _, task := range s.tasks {
		if _, ok := wanted[task.Status]; ok && task.UpdatedAt.Before(olderThan) {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (s *memReviewStore) AppendFeedback(_ context.Context, fb *domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, *fb)
	return nil
}

func (s *memReviewStore) ArchiveTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var archived int64
	now := time.Now().UTC()
	for _, task := range s.tasks {
		if domain.IsTerminalReview(task.Status) && task.ArchivedAt == nil && task.UpdatedAt.Before(olderThan) {
			t := now
			task.ArchivedAt = &t
			archived++
		}
	}
	return archived, nil
}

func (s *memReviewStore) activeCountFor(analysisID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if task.AnalysisID == analysisID && !domain.IsTerminalReview(task.Status) {
			n++
		}
	}
	return n
}
