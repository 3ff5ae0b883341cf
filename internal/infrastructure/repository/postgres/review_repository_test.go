package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/regulens/regulens/internal/core/domain"
)

func taskColumns() []string {
	return []string{"id", "analysis_id", "priority", "status", "retry_count", "assigned_reviewer_id", "created_at", "updated_at", "archived_at"}
}

func TestReviewRepositoryCreateTaskMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	mock.ExpectExec("INSERT INTO review_tasks").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	now := time.Now().UTC()
	err = repo.CreateTask(context.Background(), &domain.ReviewTask{
		ID:         "t-1",
		AnalysisID: "a-1",
		Priority:   domain.PriorityHigh,
		Status:     domain.ReviewPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if !domain.IsKind(err, domain.ErrDuplicateActiveTask) {
		t.Fatalf("expected ErrDuplicateActiveTask, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReviewRepositoryNextClaimableOrdersByPriorityThenAge(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(taskColumns()).
		AddRow("t-high-old", "a-1", "high", "pending", 0, nil, now.Add(-time.Hour), now.Add(-time.Hour), nil)

	mock.ExpectQuery("FROM review_tasks").WillReturnRows(rows)

	task, err := repo.NextClaimable(context.Background())
	if err != nil {
		t.Fatalf("NextClaimable() error = %v", err)
	}
	if task.ID != "t-high-old" || task.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected task: %+v", task)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReviewRepositoryNextClaimableEmptyQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	mock.ExpectQuery("FROM review_tasks").WillReturnRows(sqlmock.NewRows(taskColumns()))

	_, err = repo.NextClaimable(context.Background())
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewRepositoryAssignTaskConflictOnZeroRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	mock.ExpectExec("UPDATE review_tasks").
		WithArgs("t-1", "pending", "assigned", "rev-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.AssignTask(context.Background(), "t-1", "rev-1", domain.ReviewPending)
	if !domain.IsKind(err, domain.ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReviewRepositoryAssignTaskSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	mock.ExpectExec("UPDATE review_tasks").
		WithArgs("t-1", "pending", "assigned", "rev-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AssignTask(context.Background(), "t-1", "rev-1", domain.ReviewPending); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}
}

func TestReviewRepositoryTransitionRejectsIllegalMove(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	err = repo.TransitionTask(context.Background(), "t-1", domain.ReviewPending, domain.ReviewCompleted)
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending -> completed must be rejected before touching the database, got %v", err)
	}
}

func TestReviewRepositoryListStaleBuildsStatusFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(taskColumns()).
		AddRow("t-1", "a-1", "medium", "pending", 0, nil, now.Add(-2*time.Hour), now.Add(-2*time.Hour), nil).
		AddRow("t-2", "a-2", "low", "assigned", 0, "rev-1", now.Add(-3*time.Hour), now.Add(-3*time.Hour), nil)

	mock.ExpectQuery("FROM review_tasks").
		WithArgs("pending", "assigned", sqlmock.AnyArg()).
		WillReturnRows(rows)

	stale, err := repo.ListStale(context.Background(), []domain.ReviewStatus{domain.ReviewPending, domain.ReviewAssigned}, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale tasks, got %d", len(stale))
	}
	if stale[1].AssignedReviewerID != "rev-1" {
		t.Fatalf("reviewer not scanned: %+v", stale[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReviewRepositoryArchiveTerminalReportsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewReviewRepository(db)
	mock.ExpectExec("UPDATE review_tasks").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	archived, err := repo.ArchiveTerminal(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ArchiveTerminal() error = %v", err)
	}
	if archived != 3 {
		t.Fatalf("expected 3 archived, got %d", archived)
	}
}
