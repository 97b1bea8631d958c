package session

import (
	"sort"
	"sync"
	"time"
)

// PendingPrompt tracks one controller still owed a ballot prompt. It exists
// only while the round is open and the controller has neither voted nor
// expired; a disconnect does not remove it, so a quick reconnect can still
// complete within the attempt budget.
type PendingPrompt struct {
	ControllerID  string
	RoundID       uint32
	Attempts      int
	ScheduledAt   time.Time
	LastAttemptAt time.Time
	NextRetryAt   time.Time
}

// PromptQueue stores pending prompts by controller id.
type PromptQueue struct {
	mu    sync.Mutex
	items map[string]PendingPrompt
}

func NewPromptQueue() *PromptQueue {
	return &PromptQueue{items: make(map[string]PendingPrompt)}
}

// Schedule creates a pending prompt with attempt count zero and the first
// retry due after firstRetry. The initial send happens at schedule time and
// is not counted as a retry.
func (q *PromptQueue) Schedule(controllerID string, roundID uint32, now time.Time, firstRetry time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[controllerID] = PendingPrompt{
		ControllerID: controllerID,
		RoundID:      roundID,
		ScheduledAt:  now,
		NextRetryAt:  now.Add(firstRetry),
	}
}

// Due returns the prompts whose retry deadline has elapsed, sorted by
// controller id for deterministic processing.
func (q *PromptQueue) Due(now time.Time) []PendingPrompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []PendingPrompt
	for _, item := range q.items {
		if !now.Before(item.NextRetryAt) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ControllerID < out[j].ControllerID
	})
	return out
}

// MarkAttempt records one retransmission and pushes the next retry out by
// next.
func (q *PromptQueue) MarkAttempt(controllerID string, now time.Time, next time.Duration) (PendingPrompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[controllerID]
	if !ok {
		return PendingPrompt{}, false
	}
	item.Attempts++
	item.LastAttemptAt = now
	item.NextRetryAt = now.Add(next)
	q.items[controllerID] = item
	return item, true
}

// Cancel removes one pending prompt (vote accepted or controller expired).
func (q *PromptQueue) Cancel(controllerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, controllerID)
}

// Has reports whether controllerID is still owed a prompt.
func (q *PromptQueue) Has(controllerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[controllerID]
	return ok
}

// Clear drops all pending prompts (round closed or archived).
func (q *PromptQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
}

// Len returns the number of pending prompts.
func (q *PromptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
