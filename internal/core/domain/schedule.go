package domain

import "time"

type TaskKind string

const (
	TaskNotifyReviewer  TaskKind = "notify_reviewer"
	TaskEscalationCheck TaskKind = "escalation_check"
	TaskCleanupArchive  TaskKind = "cleanup_archive"
)

// ScheduledTask is a side-effecting unit of background work. Handlers
// must be idempotent: the (ID, Attempt) pair identifies one execution
// and re-delivery must not duplicate side effects.
type ScheduledTask struct {
	ID           string         `json:"id"`
	Kind         TaskKind       `json:"kind"`
	Priority     ReviewPriority `json:"priority"`
	AnalysisID   string         `json:"analysis_id,omitempty"`
	ReviewTaskID string         `json:"review_task_id,omitempty"`
	Attempt      int            `json:"attempt"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

// DeadLetter keeps an exhausted task for manual inspection instead of
// dropping it.
type DeadLetter struct {
	Task     ScheduledTask `json:"task"`
	Reason   string        `json:"reason"`
	FailedAt time.Time     `json:"failed_at"`
}
