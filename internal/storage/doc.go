// Package storage persists the scheduler's pending set across restarts.
//
// The contract is a best-effort snapshot, not a write-ahead log: every
// mutation batch rewrites the full pending set, and a load silently
// drops tasks whose due time already passed. Persistence failures are
// surfaced to the scheduler, which logs them and keeps running in
// memory.
package storage
