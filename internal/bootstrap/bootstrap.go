package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/regulens/regulens/internal/config"
	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/core/usecase"
	"github.com/regulens/regulens/internal/infrastructure/cache"
	"github.com/regulens/regulens/internal/infrastructure/chunking"
	"github.com/regulens/regulens/internal/infrastructure/index/lexical"
	"github.com/regulens/regulens/internal/infrastructure/index/vector"
	"github.com/regulens/regulens/internal/infrastructure/llm/ollama"
	"github.com/regulens/regulens/internal/infrastructure/notify"
	"github.com/regulens/regulens/internal/infrastructure/queue/nats"
	"github.com/regulens/regulens/internal/infrastructure/repository/postgres"
	"github.com/regulens/regulens/internal/infrastructure/resilience"
	"github.com/regulens/regulens/internal/infrastructure/scheduler"
	"github.com/regulens/regulens/internal/observability/logging"
	"github.com/regulens/regulens/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics

	Queue     *nats.TaskQueue
	Scheduler *scheduler.Scheduler
	Notifier  *notify.LogNotifier

	IndexUC   *usecase.IndexSourceUseCase
	SearchUC  *usecase.HybridSearchUseCase
	AnalyzeUC *usecase.AnalyzeUseCase
	ReviewUC  *usecase.ReviewQueueUseCase

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	// Breaker thresholds stay at their defaults; retry pacing is an
	// operator knob because it depends on the inference hardware.
	executor := resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
			Multiplier:     cfg.RetryMultiplier,
		},
		Breaker: resilience.DefaultConfig().Breaker,
	})

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	analyses := postgres.NewAnalysisRepository(db)
	if err := analyses.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure analyses schema: %w", err)
	}
	reviews := postgres.NewReviewRepository(db)
	if err := reviews.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure review schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init task queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	cacheManager := cache.NewManager(cache.Config{
		domain.TierSourceText:  {TTL: cfg.CacheSourceTTL, MaxEntries: cfg.CacheSourceMaxEntries},
		domain.TierEmbedding:   {TTL: cfg.CacheEmbeddingTTL, MaxEntries: cfg.CacheEmbeddingMaxEntries},
		domain.TierQueryResult: {TTL: cfg.CacheQueryTTL, MaxEntries: cfg.CacheQueryMaxEntries},
	}, pipelineMetrics)
	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkHardCeiling)
	lexicalIndex := lexical.New()
	vectorIndex := vector.New()

	searchUC := usecase.NewHybridSearchUseCase(lexicalIndex, vectorIndex, embedder, cacheManager, pipelineMetrics, usecase.HybridSearchConfig{
		Alpha:         cfg.SearchAlpha,
		Epsilon:       cfg.SearchEpsilon,
		TopK:          cfg.SearchTopK,
		Candidates:    cfg.SearchCandidates,
		BranchTimeout: time.Duration(cfg.SearchBranchTimeoutMS) * time.Millisecond,
	})
	indexUC := usecase.NewIndexSourceUseCase(splitter, lexicalIndex, vectorIndex, embedder, cacheManager, usecase.IndexConfig{
		EmbedWorkers: cfg.EmbedWorkers,
		EmbedBatch:   cfg.EmbedBatch,
	})
	scorer := usecase.NewConfidenceScorer(usecase.ConfidenceConfig{
		HighThreshold:     cfg.ConfidenceHighThreshold,
		SafetyFloor:       cfg.ConfidenceSafetyFloor,
		RetrievalWeight:   cfg.RetrievalWeight,
		GroundingWeight:   cfg.GroundingWeight,
		NumericPenalty:    cfg.NumericPenalty,
		NumericPenaltyCap: cfg.NumericPenaltyCap,
		BorderlineBand:    cfg.BorderlineBand,
	}, pipelineMetrics)
	analyzeUC := usecase.NewAnalyzeUseCase(searchUC, lexicalIndex, generator, scorer, analyses, reviews, queue, pipelineMetrics)
	reviewUC := usecase.NewReviewQueueUseCase(reviews, analyses, queue, pipelineMetrics, usecase.ReviewConfig{
		EscalateAfter: cfg.ReviewEscalateAfter,
		AbandonAfter:  cfg.ReviewAbandonAfter,
		ClaimAttempts: cfg.ReviewClaimAttempts,
		ArchiveAfter:  cfg.ReviewArchiveAfter,
	})

	taskScheduler := scheduler.New(scheduler.Config{
		Workers:    cfg.SchedulerWorkers,
		MaxRetries: cfg.SchedulerMaxRetries,
		RetryPolicy: resilience.RetryPolicy{
			InitialBackoff: cfg.SchedulerInitialBackoff,
			MaxBackoff:     cfg.SchedulerMaxBackoff,
			Multiplier:     cfg.SchedulerBackoffMultiplier,
		},
	}, pipelineMetrics)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: pipelineMetrics,

		Queue:     queue,
		Scheduler: taskScheduler,
		Notifier:  notify.NewLogNotifier(),

		IndexUC:   indexUC,
		SearchUC:  searchUC,
		AnalyzeUC: analyzeUC,
		ReviewUC:  reviewUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
