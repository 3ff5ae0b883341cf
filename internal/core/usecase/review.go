package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/core/ports"
)

type ReviewConfig struct {
	// EscalateAfter is the wait timeout before a pending or assigned
	// task escalates; AbandonAfter is the maximum window before a task
	// nobody acted on becomes terminal.
	EscalateAfter time.Duration
	AbandonAfter  time.Duration
	// ClaimAttempts bounds how many candidate tasks a single claim call
	// walks through when racing other reviewers.
	ClaimAttempts int
	// ArchiveAfter is how long completed and abandoned tasks stay in the
	// active queue queries before the cleanup sweep stamps them archived.
	ArchiveAfter time.Duration
}

// ReviewQueueUseCase drives the human-review state machine over the
// durable store. All transitions go through compare-and-swap updates.
type ReviewQueueUseCase struct {
	reviews  ports.ReviewStore
	analyses ports.AnalysisStore
	bus      ports.TaskBus
	metrics  ReviewMetrics
	cfg      ReviewConfig
}

func NewReviewQueueUseCase(
	reviews ports.ReviewStore,
	analyses ports.AnalysisStore,
	bus ports.TaskBus,
	metrics ReviewMetrics,
	cfg ReviewConfig,
) *ReviewQueueUseCase {
	if cfg.ClaimAttempts <= 0 {
		cfg.ClaimAttempts = 3
	}
	if cfg.ArchiveAfter <= 0 {
		cfg.ArchiveAfter = 30 * 24 * time.Hour
	}
	return &ReviewQueueUseCase{
		reviews:  reviews,
		analyses: analyses,
		bus:      bus,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Claim assigns the oldest unassigned task of the highest priority to
// the reviewer. On an assignment race it retries against the next
// candidate instead of failing the reviewer outright.
func (uc *ReviewQueueUseCase) Claim(ctx context.Context, reviewerID string) (*domain.ReviewTask, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "claim review", errors.New("reviewer id is required"))
	}

	var lastErr error
	for attempt := 0; attempt < uc.cfg.ClaimAttempts; attempt++ {
		candidate, err := uc.reviews.NextClaimable(ctx)
		if err != nil {
			if domain.IsKind(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("next claimable task: %w", err)
		}

		err = uc.reviews.AssignTask(ctx, candidate.ID, reviewerID, candidate.Status)
		if err == nil {
			return uc.reviews.GetTask(ctx, candidate.ID)
		}
		if domain.IsKind(err, domain.ErrAssignmentConflict) {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("assign task: %w", err)
	}
	if lastErr == nil {
		lastErr = domain.ErrAssignmentConflict
	}
	return nil, lastErr
}

func (uc *ReviewQueueUseCase) Start(ctx context.Context, taskID, reviewerID string) error {
	task, err := uc.reviews.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.AssignedReviewerID != reviewerID {
		return domain.WrapError(domain.ErrInvalidInput, "start review", fmt.Errorf("task %s is not assigned to reviewer %s", taskID, reviewerID))
	}
	return uc.transition(ctx, task, domain.ReviewInReview)
}

// Complete appends the reviewer decision as an immutable feedback row
// and marks the originating analysis as reviewed; history is never
// deleted.
func (uc *ReviewQueueUseCase) Complete(ctx context.Context, taskID, decision, notes string) error {
	if strings.TrimSpace(decision) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "complete review", errors.New("decision is required"))
	}
	task, err := uc.reviews.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := uc.transition(ctx, task, domain.ReviewCompleted); err != nil {
		return err
	}

	feedback := &domain.Feedback{
		ID:               uuid.NewString(),
		TaskID:           task.ID,
		ReviewerDecision: decision,
		Notes:            notes,
		CreatedAt:        time.Now().UTC(),
	}
	if err := uc.reviews.AppendFeedback(ctx, feedback); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	if err := uc.analyses.UpdateStatus(ctx, task.AnalysisID, domain.AnalysisReviewed); err != nil {
		return fmt.Errorf("mark analysis reviewed: %w", err)
	}
	return nil
}

// EscalateStale moves pending/assigned tasks older than the wait
// timeout to escalated and enqueues an escalation check for each.
func (uc *ReviewQueueUseCase) EscalateStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-uc.cfg.EscalateAfter)
	stale, err := uc.reviews.ListStale(ctx, []domain.ReviewStatus{domain.ReviewPending, domain.ReviewAssigned}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}

	escalated := 0
	for _, task := range stale {
		if err := uc.reviews.TransitionTask(ctx, task.ID, task.Status, domain.ReviewEscalated); err != nil {
			if domain.IsKind(err, domain.ErrAssignmentConflict) {
				// Someone acted on it between the scan and the swap.
				continue
			}
			return escalated, fmt.Errorf("escalate task %s: %w", task.ID, err)
		}
		escalated++
		if uc.metrics != nil {
			uc.metrics.ReviewEscalated()
		}
		slog.Warn("review_task_escalated", "task_id", task.ID, "analysis_id", task.AnalysisID, "priority", string(task.Priority))

		event := domain.ScheduledTask{
			ID:           uuid.NewString(),
			Kind:         domain.TaskEscalationCheck,
			Priority:     task.Priority,
			AnalysisID:   task.AnalysisID,
			ReviewTaskID: task.ID,
			EnqueuedAt:   time.Now().UTC(),
		}
		if err := uc.bus.PublishTask(ctx, event); err != nil {
			slog.Warn("review_event_publish_failed", "task_id", task.ID, "error", err)
		}
	}
	return escalated, nil
}

// AbandonExpired terminates tasks nobody acted on within the maximum
// window. Abandoned tasks stay queryable for audit.
func (uc *ReviewQueueUseCase) AbandonExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-uc.cfg.AbandonAfter)
	expired, err := uc.reviews.ListStale(ctx, []domain.ReviewStatus{domain.ReviewPending, domain.ReviewAssigned, domain.ReviewEscalated}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired tasks: %w", err)
	}

	abandoned := 0
	for _, task := range expired {
		if err := uc.reviews.TransitionTask(ctx, task.ID, task.Status, domain.ReviewAbandoned); err != nil {
			if domain.IsKind(err, domain.ErrAssignmentConflict) {
				continue
			}
			return abandoned, fmt.Errorf("abandon task %s: %w", task.ID, err)
		}
		abandoned++
		if uc.metrics != nil {
			uc.metrics.ReviewAbandoned()
		}
		slog.Error("review_task_abandoned", "task_id", task.ID, "analysis_id", task.AnalysisID)
	}
	return abandoned, nil
}

// ArchiveTerminal stamps completed and abandoned tasks older than the
// retention window so queue scans skip them. Rows are never deleted;
// archived tasks and their feedback stay queryable by id.
func (uc *ReviewQueueUseCase) ArchiveTerminal(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-uc.cfg.ArchiveAfter)
	archived, err := uc.reviews.ArchiveTerminal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive terminal tasks: %w", err)
	}
	if archived > 0 {
		slog.Info("review_tasks_archived", "count", archived)
	}
	return archived, nil
}

func (uc *ReviewQueueUseCase) transition(ctx context.Context, task *domain.ReviewTask, to domain.ReviewStatus) error {
	if !domain.CanTransition(task.Status, to) {
		return domain.WrapError(
			domain.ErrInvalidTransition,
			"review transition",
			fmt.Errorf("%s -> %s for task %s", task.Status, to, task.ID),
		)
	}
	if err := uc.reviews.TransitionTask(ctx, task.ID, task.Status, to); err != nil {
		return err
	}
	return nil
}
