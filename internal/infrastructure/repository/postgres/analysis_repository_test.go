package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/regulens/regulens/internal/core/domain"
)

func TestAnalysisRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAnalysisRepository(db)
	mock.ExpectQuery("FROM analyses").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalysisRepositoryRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAnalysisRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO analyses").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &domain.AnalysisRecord{
		ID:                "a-1",
		SourceID:          "src-1",
		Collection:        "docs",
		Question:          "what applies",
		Answer:            "the retention clause applies",
		Confidence:        0.91,
		HallucinationRisk: false,
		Status:            domain.AnalysisAutoApproved,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "source_id", "collection", "question", "answer", "confidence", "hallucination_risk", "degraded", "status", "created_at", "updated_at"}).
		AddRow(rec.ID, rec.SourceID, rec.Collection, rec.Question, rec.Answer, rec.Confidence, rec.HallucinationRisk, rec.Degraded, string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	mock.ExpectQuery("FROM analyses").
		WithArgs("a-1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.AnalysisAutoApproved || got.Confidence != 0.91 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnalysisRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAnalysisRepository(db)
	mock.ExpectExec("UPDATE analyses").
		WithArgs("missing", string(domain.AnalysisReviewed), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), "missing", domain.AnalysisReviewed)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
