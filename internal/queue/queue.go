package queue

import (
	"container/heap"
	"errors"
	"sort"
	"time"

	"leadpulse/internal/task"
)

// ErrDuplicateID is returned when a pushed record's id collides with an
// active (non-cancelled, non-executed) record.
var ErrDuplicateID = errors.New("duplicate task id")

// Queue is a binary min-heap of task records ordered by
// (due time, priority), with a side index for O(1) id lookups.
//
// Cancellation tombstones the heap node (explicit cancelled flag) and
// removes it from the index immediately; the node itself is discarded
// lazily when it reaches the top, or eagerly by Compact(). Ties on both
// due time and priority are heap-order dependent, not deterministic.
//
// Queue is not safe for concurrent use; the scheduler guards it with
// its own mutex.
type Queue struct {
	h          entryHeap
	index      map[string]*entry
	tombstones int
}

type entry struct {
	rec       *task.Record
	cancelled bool
}

func New() *Queue {
	q := &Queue{index: make(map[string]*entry)}
	heap.Init(&q.h)
	return q
}

// Len reports the number of active (pending) records.
func (q *Queue) Len() int { return len(q.index) }

// Tombstones reports cancelled nodes still physically held by the heap.
func (q *Queue) Tombstones() int { return q.tombstones }

// Push adds a record. The id must be unique among active records.
func (q *Queue) Push(rec *task.Record) error {
	if _, ok := q.index[rec.ID]; ok {
		return ErrDuplicateID
	}
	e := &entry{rec: rec}
	heap.Push(&q.h, e)
	q.index[rec.ID] = e
	return nil
}

// Get returns the active record with the given id.
func (q *Queue) Get(id string) (*task.Record, bool) {
	e, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return e.rec, true
}

// Cancel tombstones the record with the given id. It reports whether an
// active record was found. The heap node stays behind until popped or
// compacted; only the index forgets the id immediately.
func (q *Queue) Cancel(id string) bool {
	e, ok := q.index[id]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(q.index, id)
	q.tombstones++
	return true
}

// PopDue removes and returns all records due at or before now, in
// ascending (due time, priority) order. Tombstoned nodes encountered on
// the way are discarded permanently. Scanning stops at the first head
// that is not yet due, tombstoned or not.
func (q *Queue) PopDue(now time.Time) []*task.Record {
	var ready []*task.Record
	for q.h.Len() > 0 {
		top := q.h[0]
		if top.rec.DueTime.After(now) {
			break
		}
		e := heap.Pop(&q.h).(*entry)
		if e.cancelled {
			q.tombstones--
			continue
		}
		delete(q.index, e.rec.ID)
		ready = append(ready, e.rec)
	}
	return ready
}

// List returns a display-only snapshot of active records sorted by
// (due time, priority) ascending. It never mutates queue state.
func (q *Queue) List() []*task.Record {
	out := make([]*task.Record, 0, len(q.index))
	for _, e := range q.index {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueTime.Equal(out[j].DueTime) {
			return out[i].DueTime.Before(out[j].DueTime)
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Compact rebuilds the heap from index-valid entries, dropping all
// tombstones at once.
func (q *Queue) Compact() {
	if q.tombstones == 0 {
		return
	}
	fresh := make(entryHeap, 0, len(q.index))
	for _, e := range q.index {
		fresh = append(fresh, e)
	}
	q.h = fresh
	heap.Init(&q.h)
	q.tombstones = 0
}

// NeedsCompaction reports whether tombstones passed the floor and make
// up at least half the heap.
func (q *Queue) NeedsCompaction(floor int) bool {
	if floor <= 0 {
		floor = 64
	}
	return q.tombstones >= floor && q.tombstones*2 >= q.h.Len()
}

// entryHeap implements heap.Interface ordered by (due time, priority).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].rec.DueTime.Equal(h[j].rec.DueTime) {
		return h[i].rec.DueTime.Before(h[j].rec.DueTime)
	}
	return h[i].rec.Priority < h[j].rec.Priority
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
