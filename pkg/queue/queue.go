package queue

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// serviceTimeAlpha smooths the rolling mean service times used for
// wait estimation.
const serviceTimeAlpha = 0.2

// defaultServiceTime seeds each priority's estimator before any
// completion is observed.
const defaultServiceTime = 8 * time.Minute

// defaultMaxWait is the time an entry may sit in its priority band
// before aging bumps it one level. CRITICAL entries never age.
func defaultMaxWait(p models.Priority) time.Duration {
	switch p {
	case models.PriorityLow:
		return time.Hour
	case models.PriorityMedium:
		return 30 * time.Minute
	case models.PriorityHigh:
		return 15 * time.Minute
	}
	return 0
}

// WaitQueue is the single ordered human-assignment queue. Ordering is
// global: (priority_rank DESC, enqueued_at ASC), stable under equal keys.
type WaitQueue struct {
	mu    sync.Mutex
	items entryHeap
	byID  map[string]*entryItem
	seq   uint64

	meanService map[models.Priority]time.Duration
	logger      *slog.Logger
}

type entryItem struct {
	entry *models.QueueEntry
	seq   uint64 // insertion order; stabilizes equal keys
	index int    // heap index
}

// NewWaitQueue creates an empty queue.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{
		byID:        make(map[string]*entryItem),
		meanService: make(map[models.Priority]time.Duration),
		logger:      slog.Default().With("component", "wait-queue"),
	}
}

// Enqueue inserts an entry, applying back-pressure: when the queue holds
// more than overflow entries, new LOW-priority entries are rejected.
// CRITICAL entries are never rejected. Returns the stored entry with
// position and estimate populated.
func (q *WaitQueue) Enqueue(entry *models.QueueEntry, overflow int) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Back-pressure applies to LOW only; CRITICAL is never rejected.
	if entry.Priority == models.PriorityLow && overflow > 0 && q.items.Len() >= overflow {
		return nil, fmt.Errorf("%w: %d entries waiting", ErrQueueFull, q.items.Len())
	}

	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	if entry.MaxWaitSeconds == 0 {
		entry.MaxWaitSeconds = int(defaultMaxWait(entry.Priority) / time.Second)
	}
	entry.Status = models.EntryQueued

	item := &entryItem{entry: entry, seq: q.seq}
	q.seq++
	heap.Push(&q.items, item)
	q.byID[entry.EntryID] = item

	q.reassessLocked()

	q.logger.Info("Request enqueued",
		"entry_id", entry.EntryID,
		"request_id", entry.RequestID,
		"priority", entry.Priority,
		"position", entry.Position)
	return entry, nil
}

// Cancel marks an entry cancelled and removes it. Idempotent: cancelling
// an unknown or already-terminal entry is a no-op.
func (q *WaitQueue) Cancel(entryID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[entryID]
	if !ok || item.entry.Status != models.EntryQueued {
		return
	}
	item.entry.Status = models.EntryCancelled
	q.removeLocked(item)
	q.reassessLocked()
	q.logger.Info("Queue entry cancelled", "entry_id", entryID, "request_id", item.entry.RequestID)
}

// MarkAssigned transitions an entry from queued to assigned and removes
// it from the waiting order. The caller has already committed the
// directory assignment.
func (q *WaitQueue) MarkAssigned(entryID, agentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[entryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if item.entry.Status != models.EntryQueued {
		return fmt.Errorf("%w: %s is %s", ErrEntryNotQueued, entryID, item.entry.Status)
	}
	item.entry.Status = models.EntryAssigned
	item.entry.AssignedAgentID = agentID
	q.removeLocked(item)
	q.reassessLocked()
	return nil
}

// PeekForAgent returns a copy of the best still-waiting entry this agent
// could take: entries are considered in queue order and the first one
// whose hard requirements the agent satisfies wins.
func (q *WaitQueue) PeekForAgent(agent *models.AgentSnapshot, eligible func(*models.QueueEntry, *models.AgentSnapshot) bool) *models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.ordered() {
		if item.entry.Status != models.EntryQueued {
			continue
		}
		if eligible == nil || eligible(item.entry, agent) {
			cp := *item.entry
			return &cp
		}
	}
	return nil
}

// Entry returns a copy of the entry by id.
func (q *WaitQueue) Entry(entryID string) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	cp := *item.entry
	return &cp, nil
}

// RecordServiceTime feeds a completed assignment's duration into the
// per-priority rolling mean used by wait estimation.
func (q *WaitQueue) RecordServiceTime(p models.Priority, d time.Duration) {
	if d <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	mean := q.serviceTimeLocked(p)
	q.meanService[p] = time.Duration((1-serviceTimeAlpha)*float64(mean) + serviceTimeAlpha*float64(d))
}

func (q *WaitQueue) serviceTime(p models.Priority) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serviceTimeLocked(p)
}

func (q *WaitQueue) serviceTimeLocked(p models.Priority) time.Duration {
	if mean, ok := q.meanService[p]; ok {
		return mean
	}
	return defaultServiceTime
}

// Len returns the number of waiting entries.
func (q *WaitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// DepthByPriority returns the number of waiting entries per priority.
func (q *WaitQueue) DepthByPriority() map[models.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	depth := make(map[models.Priority]int)
	for _, item := range q.items {
		depth[item.entry.Priority]++
	}
	return depth
}

// reassessLocked ages overdue entries, then recomputes positions and
// assignment estimates in queue order. The estimate for each entry
// accumulates the mean service time of every entry ahead of it. Caller
// holds q.mu.
func (q *WaitQueue) reassessLocked() {
	now := time.Now().UTC()
	q.escalateOverdueLocked(now)
	var ahead time.Duration
	for i, item := range q.ordered() {
		item.entry.Position = i + 1
		ahead += q.serviceTimeLocked(item.entry.Priority)
		item.entry.EstimatedAssignmentAt = now.Add(ahead)
	}
}

// escalateOverdueLocked bumps entries that outwaited their band up one
// priority level. The clock for the next bump starts at the escalation.
func (q *WaitQueue) escalateOverdueLocked(now time.Time) {
	var overdue []*entryItem
	for _, item := range q.items {
		e := item.entry
		if e.MaxWaitSeconds <= 0 || e.Priority == models.PriorityCritical {
			continue
		}
		if now.Sub(e.EnqueuedAt) >= time.Duration(e.MaxWaitSeconds)*time.Second {
			overdue = append(overdue, item)
		}
	}
	for _, item := range overdue {
		e := item.entry
		from := e.Priority
		e.Priority = e.Priority.Escalate()
		e.MaxWaitSeconds = int(now.Sub(e.EnqueuedAt)/time.Second) + int(defaultMaxWait(e.Priority)/time.Second)
		heap.Fix(&q.items, item.index)
		q.logger.Info("Queue entry escalated after max wait",
			"entry_id", e.EntryID,
			"request_id", e.RequestID,
			"from", from,
			"to", e.Priority)
	}
}

// ordered returns the items in dequeue order. It sorts a copied slice so
// the live heap's index bookkeeping is never touched.
func (q *WaitQueue) ordered() []*entryItem {
	out := make([]*entryItem, len(q.items))
	copy(out, q.items)
	sort.Slice(out, func(i, j int) bool { return entryBefore(out[i], out[j]) })
	return out
}

func (q *WaitQueue) removeLocked(item *entryItem) {
	heap.Remove(&q.items, item.index)
	delete(q.byID, item.entry.EntryID)
}

// entryBefore is the dequeue order: (priority_rank DESC, enqueued_at ASC,
// seq ASC).
func entryBefore(a, b *entryItem) bool {
	if ra, rb := a.entry.Priority.Rank(), b.entry.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.entry.EnqueuedAt.Equal(b.entry.EnqueuedAt) {
		return a.entry.EnqueuedAt.Before(b.entry.EnqueuedAt)
	}
	return a.seq < b.seq
}

type entryHeap []*entryItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return entryBefore(h[i], h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	item := x.(*entryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
