package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/regulens/regulens/internal/bootstrap"
	"github.com/regulens/regulens/internal/config"
	"github.com/regulens/regulens/internal/core/domain"
)

const (
	escalationSweepInterval = 5 * time.Minute
	abandonSweepInterval    = 30 * time.Minute
	archiveSweepInterval    = 12 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "regulens-worker", cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	app.Scheduler.Register(domain.TaskNotifyReviewer, app.Notifier.NotifyReviewer)
	app.Scheduler.Register(domain.TaskEscalationCheck, func(_ context.Context, task domain.ScheduledTask) error {
		slog.Warn("review_escalation_alert",
			"review_task_id", task.ReviewTaskID,
			"analysis_id", task.AnalysisID,
			"priority", string(task.Priority),
		)
		return nil
	})
	app.Scheduler.Register(domain.TaskCleanupArchive, func(taskCtx context.Context, _ domain.ScheduledTask) error {
		_, err := app.ReviewUC.ArchiveTerminal(taskCtx)
		return err
	})

	go app.Scheduler.Run(ctx)
	go runSweeps(ctx, app)
	go serveAdmin(ctx, app, cfg.WorkerMetricsPort)

	app.Logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeTasks(ctx, func(_ context.Context, task domain.ScheduledTask) error {
		app.Scheduler.Enqueue(task)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// runSweeps drives the time-based review transitions. The sweeps are
// idempotent, so overlapping runs across worker restarts are safe.
func runSweeps(ctx context.Context, app *bootstrap.App) {
	escalate := time.NewTicker(escalationSweepInterval)
	abandon := time.NewTicker(abandonSweepInterval)
	archive := time.NewTicker(archiveSweepInterval)
	defer escalate.Stop()
	defer abandon.Stop()
	defer archive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-escalate.C:
			if _, err := app.ReviewUC.EscalateStale(ctx); err != nil {
				slog.Error("escalation_sweep_failed", "error", err)
			}
		case <-abandon.C:
			if _, err := app.ReviewUC.AbandonExpired(ctx); err != nil {
				slog.Error("abandon_sweep_failed", "error", err)
			}
		case <-archive.C:
			app.Scheduler.Enqueue(domain.ScheduledTask{
				ID:         uuid.NewString(),
				Kind:       domain.TaskCleanupArchive,
				Priority:   domain.PriorityLow,
				EnqueuedAt: time.Now().UTC(),
			})
		}
	}
}

// serveAdmin exposes worker metrics and the dead-letter list on the
// internal port.
func serveAdmin(ctx context.Context, app *bootstrap.App, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/v1/admin/dead-letters", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(app.Scheduler.DeadLetters())
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker_admin_listening", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("worker_admin_server_error", "error", err)
	}
}
