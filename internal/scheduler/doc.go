// Package scheduler is the priority-queue task engine.
//
// # Overview
//
// The Service accepts "run this payload at this time, once or
// repeatedly", keeps the pending set in a binary min-heap ordered by
// (due time, priority), persists it as a best-effort snapshot, and
// executes due tasks from exactly one background worker. Any number of
// callers may invoke Schedule, Cancel, ListPending and Stats
// concurrently.
//
// # Ordering
//
// Among tasks due at scan time, dispatch order is ascending due time,
// ties broken by ascending priority (lower first). Ties on both fields
// are heap-order dependent and not deterministic.
//
// # Cancellation
//
// Cancel is best-effort: it tombstones the heap node and removes the id
// from the index immediately, which guarantees the task is absent from
// ListPending and will not fire on a future scan. A task already moved
// into an in-flight scan's ready batch still executes.
//
// # Failure isolation
//
// Executor errors and panics are confined to the one dispatch: they are
// logged, recorded in history and counted, and never abort the scan
// batch or a recurring series (the successor is queued before dispatch).
// Persistence failures are logged and non-fatal; scheduling continues
// in memory.
package scheduler
