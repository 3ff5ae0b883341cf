package domain

import "time"

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewAssigned  ReviewStatus = "assigned"
	ReviewInReview  ReviewStatus = "in_review"
	ReviewCompleted ReviewStatus = "completed"
	ReviewEscalated ReviewStatus = "escalated"
	ReviewAbandoned ReviewStatus = "abandoned"
)

type ReviewPriority string

const (
	// PriorityHigh is reserved for analyses flagged with hallucination
	// risk; reviewers drain those first.
	PriorityHigh   ReviewPriority = "high"
	PriorityMedium ReviewPriority = "medium"
	PriorityLow    ReviewPriority = "low"
)

// PriorityRank orders priorities for queue draining, highest first.
func PriorityRank(p ReviewPriority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ReviewTask is the persisted human-review work item. At most one
// non-terminal task exists per analysis.
type ReviewTask struct {
	ID                 string         `json:"id"`
	AnalysisID         string         `json:"analysis_id"`
	Priority           ReviewPriority `json:"priority"`
	Status             ReviewStatus   `json:"status"`
	RetryCount         int            `json:"retry_count"`
	AssignedReviewerID string         `json:"assigned_reviewer_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ArchivedAt         *time.Time     `json:"archived_at,omitempty"`
}

// Feedback is an append-only audit record of a reviewer decision.
type Feedback struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	ReviewerDecision string    `json:"reviewer_decision"`
	Notes            string    `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
}

// reviewTransitions is the full state machine:
// pending -> assigned -> in_review -> completed, with escalation
// reachable from pending/assigned on wait timeout and abandonment as
// the terminal failure when nobody acts within the maximum window.
var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:   {ReviewAssigned, ReviewEscalated, ReviewAbandoned},
	ReviewAssigned:  {ReviewInReview, ReviewEscalated, ReviewAbandoned},
	ReviewInReview:  {ReviewCompleted},
	ReviewEscalated: {ReviewAssigned, ReviewAbandoned},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to ReviewStatus) bool {
	for _, next := range reviewTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalReview reports whether a review status admits no further
// transitions. Terminal tasks are archived, never deleted.
func IsTerminalReview(status ReviewStatus) bool {
	return status == ReviewCompleted || status == ReviewAbandoned
}
