package scheduler

import "github.com/regulens/regulens/internal/core/domain"

// queued wraps a task with an arrival sequence so equal priorities
// drain first-in first-out.
type queued struct {
	task domain.ScheduledTask
	seq  uint64
}

type taskHeap struct {
	items []queued
	seq   uint64
}

func (h *taskHeap) nextSeq() uint64 {
	h.seq++
	return h.seq
}

func (h *taskHeap) Len() int { return len(h.items) }

func (h *taskHeap) Less(i, j int) bool {
	ri := domain.PriorityRank(h.items[i].task.Priority)
	rj := domain.PriorityRank(h.items[j].task.Priority)
	if ri != rj {
		return ri < rj
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *taskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *taskHeap) Push(x any) {
	h.items = append(h.items, x.(queued))
}

func (h *taskHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
