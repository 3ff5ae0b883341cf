package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/regulens/regulens/internal/core/domain"
)

// LogNotifier records reviewer notifications to the structured log. It
// is the delivery seam: a mail or chat integration replaces it without
// touching the scheduler. Delivery is deduplicated by (task id,
// attempt) so a redelivered queue message cannot notify twice.
type LogNotifier struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{seen: make(map[string]struct{})}
}

func (n *LogNotifier) NotifyReviewer(_ context.Context, task domain.ScheduledTask) error {
	key := fmt.Sprintf("%s#%d", task.ReviewTaskID, task.Attempt)

	n.mu.Lock()
	if _, dup := n.seen[key]; dup {
		n.mu.Unlock()
		slog.Debug("reviewer_notification_deduplicated", "task_id", task.ReviewTaskID, "attempt", task.Attempt)
		return nil
	}
	n.seen[key] = struct{}{}
	n.mu.Unlock()

	slog.Info("reviewer_notified",
		"task_id", task.ReviewTaskID,
		"analysis_id", task.AnalysisID,
		"priority", string(task.Priority),
		"attempt", task.Attempt,
	)
	return nil
}
