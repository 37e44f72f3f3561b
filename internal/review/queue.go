package review

import (
	"fmt"
	"sync"
	"time"

	"cvreview/internal/review/model"
)

// Queue is the ordered shortlist of a workspace, unique by document id.
type Queue struct {
	mu      sync.RWMutex
	entries []model.QueueEntry
	now     func() time.Time
	onDirty func()
}

// NewQueue returns an empty queue that stamps entries with now. A nil now
// uses time.Now.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// OnDirty registers fn to be called after every mutation.
func (q *Queue) OnDirty(fn func()) {
	q.mu.Lock()
	q.onDirty = fn
	q.mu.Unlock()
}

func (q *Queue) markDirty() {
	q.mu.RLock()
	fn := q.onDirty
	q.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (q *Queue) Enqueue(entry model.QueueEntry) error {
	q.mu.Lock()
	if q.indexOf(entry.ID) >= 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}
	entry.AddedAt = q.now().UTC()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	q.markDirty()
	return nil
}

// Remove drops the entry for docID. It reports whether an entry was removed.
func (q *Queue) Remove(docID string) bool {
	q.mu.Lock()
	i := q.indexOf(docID)
	if i < 0 {
		q.mu.Unlock()
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.mu.Unlock()

	q.markDirty()
	return true
}

// Reorder moves the entry at from so that it ends up at index to.
func (q *Queue) Reorder(from, to int) error {
	q.mu.Lock()
	n := len(q.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		q.mu.Unlock()
		return fmt.Errorf("%w: move %d -> %d in queue of %d", ErrIndexOutOfBounds, from, to, n)
	}
	moved := q.entries[from]
	q.entries = append(q.entries[:from], q.entries[from+1:]...)
	q.entries = append(q.entries[:to], append([]model.QueueEntry{moved}, q.entries[to:]...)...)
	q.mu.Unlock()

	q.markDirty()
	return nil
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()

	q.markDirty()
}

func (q *Queue) Entries() []model.QueueEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]model.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

func (q *Queue) Contains(docID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.indexOf(docID) >= 0
}

// Replace installs a pulled queue. Later duplicates of an id are dropped.
// Replace does not mark the queue dirty.
func (q *Queue) Replace(entries []model.QueueEntry) {
	seen := make(map[string]struct{}, len(entries))
	clean := make([]model.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		clean = append(clean, e)
	}
	q.mu.Lock()
	q.entries = clean
	q.mu.Unlock()
}

func (q *Queue) indexOf(docID string) int {
	for i, e := range q.entries {
		if e.ID == docID {
			return i
		}
	}
	return -1
}
