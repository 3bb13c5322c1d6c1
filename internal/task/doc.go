// Package task defines the scheduler's unit of work.
//
// A Record describes one pending execution: what to run (an opaque
// Command payload), when to run it (absolute due time), and whether it
// repeats (fixed interval or cron expression). Records are owned
// exclusively by the scheduler; callers only ever hold string ids.
//
// Command payloads are a closed set of variants (see Kind). The
// scheduler never looks inside a command beyond its kind; executors do.
package task
