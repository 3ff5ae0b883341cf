package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/regulens/regulens/internal/core/domain"
)

const uniqueViolation = "23505"

// ReviewRepository persists review tasks and feedback. All status
// changes are compare-and-swap on the expected current status, so a
// lost race surfaces as zero rows affected instead of a silent
// overwrite.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	// The partial unique index enforces at most one non-terminal task
	// per analysis at the database level; races between workers collapse
	// into a unique violation.
	const query = `
CREATE TABLE IF NOT EXISTS review_tasks (
	id TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	assigned_reviewer_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_review_tasks_active_analysis
	ON review_tasks(analysis_id)
	WHERE status NOT IN ('completed', 'abandoned');

CREATE INDEX IF NOT EXISTS idx_review_tasks_claimable
	ON review_tasks(status, priority, created_at);

CREATE TABLE IF NOT EXISTS review_feedback (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES review_tasks(id),
	reviewer_decision TEXT NOT NULL,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_feedback_task ON review_feedback(task_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ReviewRepository) CreateTask(ctx context.Context, task *domain.ReviewTask) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO review_tasks (id, analysis_id, priority, status, retry_count, assigned_reviewer_id, created_at, updated_at, archived_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		task.ID, task.AnalysisID, string(task.Priority), string(task.Status),
		task.RetryCount, nullableString(task.AssignedReviewerID), task.CreatedAt, task.UpdatedAt, task.ArchivedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.WrapError(domain.ErrDuplicateActiveTask, "create review task", fmt.Errorf("analysis_id=%s", task.AnalysisID))
		}
		return fmt.Errorf("insert review task: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetTask(ctx context.Context, taskID string) (*domain.ReviewTask, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, analysis_id, priority, status, retry_count, assigned_reviewer_id, created_at, updated_at, archived_at
FROM review_tasks
WHERE id = $1
`, taskID)

	task, err := scanReviewTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get review task", fmt.Errorf("id=%s", taskID))
		}
		return nil, fmt.Errorf("scan review task: %w", err)
	}
	return &task, nil
}

// NextClaimable returns the oldest unclaimed task of the highest
// priority. Escalated tasks re-enter the claimable pool.
func (r *ReviewRepository) NextClaimable(ctx context.Context) (*domain.ReviewTask, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, analysis_id, priority, status, retry_count, assigned_reviewer_id, created_at, updated_at, archived_at
FROM review_tasks
WHERE status IN ('pending', 'escalated') AND archived_at IS NULL
ORDER BY
	CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
	created_at
LIMIT 1
`)

	task, err := scanReviewTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "next claimable", errors.New("queue empty"))
		}
		return nil, fmt.Errorf("scan claimable task: %w", err)
	}
	return &task, nil
}

func (r *ReviewRepository) AssignTask(ctx context.Context, taskID, reviewerID string, from domain.ReviewStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE review_tasks
SET status = $3, assigned_reviewer_id = $4, updated_at = $5
WHERE id = $1 AND status = $2
`, taskID, string(from), string(domain.ReviewAssigned), reviewerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign review task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign review task rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrAssignmentConflict, "assign review task", fmt.Errorf("id=%s expected=%s", taskID, from))
	}
	return nil
}

func (r *ReviewRepository) TransitionTask(ctx context.Context, taskID string, from, to domain.ReviewStatus) error {
	if !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrInvalidTransition, "transition review task", fmt.Errorf("%s -> %s", from, to))
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE review_tasks
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`, taskID, string(from), string(to), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transition review task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition review task rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrAssignmentConflict, "transition review task", fmt.Errorf("id=%s expected=%s", taskID, from))
	}
	return nil
}

func (r *ReviewRepository) ListStale(ctx context.Context, statuses []domain.ReviewStatus, olderThan time.Time) ([]domain.ReviewTask, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(status))
	}
	args = append(args, olderThan)

	query := fmt.Sprintf(`
SELECT id, analysis_id, priority, status, retry_count, assigned_reviewer_id, created_at, updated_at, archived_at
FROM review_tasks
WHERE status IN (%s) AND updated_at < $%d AND archived_at IS NULL
ORDER BY updated_at
`, strings.Join(placeholders, ","), len(statuses)+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReviewTask, 0)
	for rows.Next() {
		task, err := scanReviewTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale tasks: %w", err)
	}
	return out, nil
}

func (r *ReviewRepository) AppendFeedback(ctx context.Context, fb *domain.Feedback) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO review_feedback (id, task_id, reviewer_decision, notes, created_at)
VALUES ($1,$2,$3,$4,$5)
`, fb.ID, fb.TaskID, fb.ReviewerDecision, fb.Notes, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ArchiveTerminal stamps archived_at on old completed/abandoned tasks.
// Rows are never deleted; feedback history must stay queryable.
func (r *ReviewRepository) ArchiveTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE review_tasks
SET archived_at = $2
WHERE status IN ('completed', 'abandoned') AND archived_at IS NULL AND updated_at < $1
`, olderThan, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("archive terminal tasks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive terminal rows affected: %w", err)
	}
	return rows, nil
}

type reviewScanner interface {
	Scan(dest ...interface{}) error
}

func scanReviewTask(row reviewScanner) (domain.ReviewTask, error) {
	var task domain.ReviewTask
	var priority, status string
	var reviewer sql.NullString
	err := row.Scan(
		&task.ID,
		&task.AnalysisID,
		&priority,
		&status,
		&task.RetryCount,
		&reviewer,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.ArchivedAt,
	)
	if err != nil {
		return domain.ReviewTask{}, err
	}
	task.Priority = domain.ReviewPriority(priority)
	task.Status = domain.ReviewStatus(status)
	task.AssignedReviewerID = reviewer.String
	return task, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
