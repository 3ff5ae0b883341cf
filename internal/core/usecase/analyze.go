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

// ReviewMetrics is implemented by the metrics collaborator.
type ReviewMetrics interface {
	ReviewCreated(priority string)
	ReviewEscalated()
	ReviewAbandoned()
}

// AnalyzeUseCase runs the full pipeline: hybrid retrieval, grounded
// generation, confidence scoring, and gating into the review queue.
type AnalyzeUseCase struct {
	search    *HybridSearchUseCase
	lexical   ports.LexicalIndex
	generator ports.AnswerGenerator
	scorer    *ConfidenceScorer
	analyses  ports.AnalysisStore
	reviews   ports.ReviewStore
	bus       ports.TaskBus
	metrics   ReviewMetrics
}

func NewAnalyzeUseCase(
	search *HybridSearchUseCase,
	lexical ports.LexicalIndex,
	generator ports.AnswerGenerator,
	scorer *ConfidenceScorer,
	analyses ports.AnalysisStore,
	reviews ports.ReviewStore,
	bus ports.TaskBus,
	metrics ReviewMetrics,
) *AnalyzeUseCase {
	return &AnalyzeUseCase{
		search:    search,
		lexical:   lexical,
		generator: generator,
		scorer:    scorer,
		analyses:  analyses,
		reviews:   reviews,
		bus:       bus,
		metrics:   metrics,
	}
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, collection, sourceID, question string) (*domain.AnalysisRecord, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze", errors.New("question is required"))
	}

	ranked, err := uc.search.Search(ctx, domain.Query{
		Text:       question,
		Collection: collection,
		SourceID:   sourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	chunkIDs := make([]string, 0, len(ranked.Results))
	for _, result := range ranked.Results {
		chunkIDs = append(chunkIDs, result.ChunkID)
	}
	cited, err := uc.lexical.ChunksByID(ctx, collection, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("load cited chunks: %w", err)
	}

	answer := uc.generate(ctx, question, cited, ranked.Degraded)
	assessment := uc.scorer.Score(ranked.Results, answer.Text, cited)

	now := time.Now().UTC()
	record := &domain.AnalysisRecord{
		ID:                uuid.NewString(),
		SourceID:          sourceID,
		Collection:        collection,
		Question:          question,
		Answer:            answer.Text,
		Confidence:        assessment.Confidence,
		HallucinationRisk: assessment.HallucinationRisk,
		Degraded:          ranked.Degraded || answer.Degraded,
		Status:            assessment.Status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uc.analyses.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	if assessment.Status == domain.AnalysisPendingReview {
		if err := uc.createReviewTask(ctx, record, assessment); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (uc *AnalyzeUseCase) GetByID(ctx context.Context, analysisID string) (*domain.AnalysisRecord, error) {
	return uc.analyses.GetByID(ctx, analysisID)
}

// generate asks the inference collaborator for an answer; if it is
// unavailable, the pipeline degrades to a templated extract of the
// top-ranked chunk instead of failing the analysis.
func (uc *AnalyzeUseCase) generate(ctx context.Context, question string, cited []domain.Chunk, searchDegraded bool) domain.Answer {
	text, err := uc.generator.GenerateAnswer(ctx, question, cited)
	if err != nil {
		slog.Warn("answer_generation_degraded", "error", err)
		return domain.Answer{Text: templatedAnswer(cited), Cited: cited, Degraded: true}
	}
	return domain.Answer{Text: text, Cited: cited, Degraded: searchDegraded}
}

func (uc *AnalyzeUseCase) createReviewTask(ctx context.Context, record *domain.AnalysisRecord, assessment domain.Assessment) error {
	now := time.Now().UTC()
	task := &domain.ReviewTask{
		ID:         uuid.NewString(),
		AnalysisID: record.ID,
		Priority:   uc.scorer.ReviewPriority(assessment),
		Status:     domain.ReviewPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.reviews.CreateTask(ctx, task); err != nil {
		if domain.IsKind(err, domain.ErrDuplicateActiveTask) {
			return err
		}
		return fmt.Errorf("create review task: %w", err)
	}
	if uc.metrics != nil {
		uc.metrics.ReviewCreated(string(task.Priority))
	}

	event := domain.ScheduledTask{
		ID:           task.ID,
		Kind:         domain.TaskNotifyReviewer,
		Priority:     task.Priority,
		AnalysisID:   record.ID,
		ReviewTaskID: task.ID,
		EnqueuedAt:   now,
	}
	if err := uc.bus.PublishTask(ctx, event); err != nil {
		// The task row is persisted; the escalation sweep will still
		// surface it if the notification event is lost.
		slog.Warn("review_event_publish_failed", "task_id", task.ID, "error", err)
	}
	return nil
}

func templatedAnswer(cited []domain.Chunk) string {
	if len(cited) == 0 {
		return "No grounded answer is available: the language model service is unreachable and no relevant passages were retrieved."
	}
	top := cited[0]
	return fmt.Sprintf(
		"The language model service is unreachable; returning the most relevant passage instead.\n\n%s",
		top.IndexedText(),
	)
}
