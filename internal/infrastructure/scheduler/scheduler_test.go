package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/infrastructure/resilience"
)

func testConfig() Config {
	return Config{
		Workers:    1,
		MaxRetries: 3,
		RetryPolicy: resilience.RetryPolicy{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

func TestSchedulerDrainsByPriorityThenArrival(t *testing.T) {
	s := New(testConfig(), nil)

	var mu sync.Mutex
	order := make([]string, 0, 4)
	done := make(chan struct{})
	s.Register(domain.TaskNotifyReviewer, func(_ context.Context, task domain.ScheduledTask) error {
		mu.Lock()
		order = append(order, task.ID)
		finished := len(order) == 4
		mu.Unlock()
		if finished {
			close(done)
		}
		return nil
	})

	s.Enqueue(domain.ScheduledTask{ID: "low-1", Kind: domain.TaskNotifyReviewer, Priority: domain.PriorityLow})
	s.Enqueue(domain.ScheduledTask{ID: "high-1", Kind: domain.TaskNotifyReviewer, Priority: domain.PriorityHigh})
	s.Enqueue(domain.ScheduledTask{ID: "high-2", Kind: domain.TaskNotifyReviewer, Priority: domain.PriorityHigh})
	s.Enqueue(domain.ScheduledTask{ID: "medium-1", Kind: domain.TaskNotifyReviewer, Priority: domain.PriorityMedium})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not drain the queue")
	}

	want := []string{"high-1", "high-2", "medium-1", "low-1"}
	mu.Lock()
	defer mu.Unlock()
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("drain order = %v, want %v", order, want)
		}
	}
}

func TestSchedulerRetriesThenDeadLetters(t *testing.T) {
	s := New(testConfig(), nil)

	var mu sync.Mutex
	executions := 0
	s.Register(domain.TaskEscalationCheck, func(context.Context, domain.ScheduledTask) error {
		mu.Lock()
		executions++
		mu.Unlock()
		return errors.New("notifier unreachable")
	})

	s.Enqueue(domain.ScheduledTask{ID: "t-1", Kind: domain.TaskEscalationCheck, Priority: domain.PriorityHigh})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		if len(s.DeadLetters()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task never dead-lettered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	got := executions
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected exactly 3 attempts before dead-letter, got %d", got)
	}

	dead := s.DeadLetters()
	if dead[0].Task.ID != "t-1" || dead[0].Reason == "" {
		t.Fatalf("dead letter missing detail: %+v", dead[0])
	}

	// The dead letter is final; no further attempts may run.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if executions != 3 {
		t.Fatalf("dead-lettered task was retried again: %d attempts", executions)
	}
}

func TestSchedulerDeadLettersUnknownKind(t *testing.T) {
	s := New(testConfig(), nil)
	s.Enqueue(domain.ScheduledTask{ID: "t-1", Kind: domain.TaskKind("unknown"), Priority: domain.PriorityLow})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	deadline := time.After(2 * time.Second)
	for len(s.DeadLetters()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("unknown kind not dead-lettered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSchedulerSucceedsAfterTransientFailures(t *testing.T) {
	s := New(testConfig(), nil)

	var mu sync.Mutex
	executions := 0
	done := make(chan struct{})
	s.Register(domain.TaskCleanupArchive, func(context.Context, domain.ScheduledTask) error {
		mu.Lock()
		defer mu.Unlock()
		executions++
		if executions < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	s.Enqueue(domain.ScheduledTask{ID: "t-1", Kind: domain.TaskCleanupArchive, Priority: domain.PriorityMedium})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never succeeded")
	}
	if len(s.DeadLetters()) != 0 {
		t.Fatalf("successful task must not dead-letter")
	}
}
