package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/infrastructure/resilience"
)

// Handler executes one scheduled task. Handlers must be idempotent:
// the scheduler re-runs a task on failure with an incremented attempt.
type Handler func(ctx context.Context, task domain.ScheduledTask) error

type Metrics interface {
	TaskEnqueued(kind string)
	TaskCompleted(kind string, seconds float64)
	TaskRetried(kind string)
	TaskDeadLettered(kind string)
}

type Config struct {
	Workers int
	// MaxRetries bounds total executions of a task, counting the first
	// attempt: 3 means one initial run plus at most two retries.
	MaxRetries  int
	RetryPolicy resilience.RetryPolicy
}

// Scheduler drains a priority queue with a fixed worker pool. Failed
// tasks are retried with exponential backoff up to MaxRetries, then
// moved to the dead-letter list for inspection; they are never retried
// past that bound and never silently dropped.
type Scheduler struct {
	handlers map[domain.TaskKind]Handler
	metrics  Metrics
	cfg      Config

	mu     sync.Mutex
	queue  taskHeap
	dead   []domain.DeadLetter
	wake   chan struct{}
	closed bool
}

func New(cfg Config, metrics Metrics) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryPolicy.InitialBackoff <= 0 {
		cfg.RetryPolicy.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.RetryPolicy.MaxBackoff <= 0 {
		cfg.RetryPolicy.MaxBackoff = 5 * time.Second
	}
	if cfg.RetryPolicy.Multiplier < 1 {
		cfg.RetryPolicy.Multiplier = 2
	}
	return &Scheduler{
		handlers: make(map[domain.TaskKind]Handler),
		metrics:  metrics,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}
}

// Register binds a handler to a task kind. Must be called before Run.
func (s *Scheduler) Register(kind domain.TaskKind, handler Handler) {
	s.handlers[kind] = handler
}

// Enqueue adds a task to the in-process queue. Higher priority drains
// first; tasks of equal priority drain in arrival order.
func (s *Scheduler) Enqueue(task domain.ScheduledTask) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	heap.Push(&s.queue, queued{task: task, seq: s.queue.nextSeq()})
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TaskEnqueued(string(task.Kind))
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks draining the queue with cfg.Workers goroutines until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.workLoop(ctx)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// DeadLetters returns a snapshot of exhausted tasks.
func (s *Scheduler) DeadLetters() []domain.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeadLetter, len(s.dead))
	copy(out, s.dead)
	return out
}

func (s *Scheduler) workLoop(ctx context.Context) {
	for {
		task, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		s.execute(ctx, task)
	}
}

func (s *Scheduler) pop() (domain.ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return domain.ScheduledTask{}, false
	}
	item := heap.Pop(&s.queue).(queued)
	return item.task, true
}

func (s *Scheduler) execute(ctx context.Context, task domain.ScheduledTask) {
	handler, ok := s.handlers[task.Kind]
	if !ok {
		s.deadLetter(task, fmt.Sprintf("no handler registered for kind %s", task.Kind))
		return
	}

	start := time.Now()
	err := handler(ctx, task)
	if err == nil {
		if s.metrics != nil {
			s.metrics.TaskCompleted(string(task.Kind), time.Since(start).Seconds())
		}
		return
	}

	if task.Attempt+1 >= s.cfg.MaxRetries {
		s.deadLetter(task, err.Error())
		return
	}

	backoff := s.backoffFor(task.Attempt)
	slog.Warn("scheduled_task_retry",
		"task_id", task.ID,
		"kind", string(task.Kind),
		"attempt", task.Attempt+1,
		"backoff_ms", float64(backoff.Microseconds())/1000.0,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.TaskRetried(string(task.Kind))
	}

	retry := task
	retry.Attempt++
	timer := time.NewTimer(backoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		s.Enqueue(retry)
	case <-timer.C:
		s.Enqueue(retry)
	}
}

func (s *Scheduler) backoffFor(attempt int) time.Duration {
	backoff := s.cfg.RetryPolicy.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * s.cfg.RetryPolicy.Multiplier)
		if backoff >= s.cfg.RetryPolicy.MaxBackoff {
			return s.cfg.RetryPolicy.MaxBackoff
		}
	}
	return backoff
}

func (s *Scheduler) deadLetter(task domain.ScheduledTask, reason string) {
	s.mu.Lock()
	s.dead = append(s.dead, domain.DeadLetter{
		Task:     task,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	s.mu.Unlock()

	slog.Error("scheduled_task_dead_lettered",
		"task_id", task.ID,
		"kind", string(task.Kind),
		"attempts", task.Attempt+1,
		"reason", reason,
	)
	if s.metrics != nil {
		s.metrics.TaskDeadLettered(string(task.Kind))
	}
}
