package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// Config configures snapshot persistence.
//
// Driver values:
//   - "file": JSON snapshot, fully rewritten on every save
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", persistence is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists the entire pending set.
//
// Save is a full-overwrite contract, not an append log: the snapshot
// always reflects the current pending set and nothing else. Load drops
// records whose due time already elapsed; expired tasks are never
// executed after a restart.
type Store interface {
	Load(ctx context.Context) ([]*task.Record, error)
	Save(ctx context.Context, records []*task.Record) error
	Close() error
}

// snapshotRecord is the wire form of one pending task.
// Keep it compact and schema-stable.
type snapshotRecord struct {
	Timestamp          int64           `json:"timestamp"` // due time, epoch seconds
	Priority           int             `json:"priority"`
	TaskID             string          `json:"task_id"`
	TaskData           json.RawMessage `json:"task_data"` // opaque payload, passed through unmodified
	Recurring          bool            `json:"recurring"`
	RecurrenceInterval int64           `json:"recurrence_interval,omitempty"` // seconds
	CronExpr           string          `json:"cron_expr,omitempty"`
	CreatedAt          int64           `json:"created_at,omitempty"` // epoch seconds, informational
}

func toSnapshot(r *task.Record) (snapshotRecord, error) {
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return snapshotRecord{}, fmt.Errorf("encode payload for %s: %w", r.ID, err)
	}
	sr := snapshotRecord{
		Timestamp: r.DueTime.Unix(),
		Priority:  r.Priority,
		TaskID:    r.ID,
		TaskData:  data,
		Recurring: r.Recurring,
		CronExpr:  r.CronExpr,
	}
	if r.Interval > 0 {
		sr.RecurrenceInterval = int64(r.Interval / time.Second)
	}
	if !r.CreatedAt.IsZero() {
		sr.CreatedAt = r.CreatedAt.Unix()
	}
	return sr, nil
}

func fromSnapshot(sr snapshotRecord) (*task.Record, error) {
	var cmd task.Command
	if len(sr.TaskData) > 0 {
		if err := json.Unmarshal(sr.TaskData, &cmd); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", sr.TaskID, err)
		}
	}
	r := &task.Record{
		ID:        sr.TaskID,
		DueTime:   time.Unix(sr.Timestamp, 0),
		Priority:  sr.Priority,
		Payload:   cmd,
		Recurring: sr.Recurring,
		Interval:  time.Duration(sr.RecurrenceInterval) * time.Second,
		CronExpr:  sr.CronExpr,
	}
	if sr.CreatedAt > 0 {
		r.CreatedAt = time.Unix(sr.CreatedAt, 0)
	}
	return r, nil
}

// pruneExpired drops records due at or before now. Dropped count is
// logged at debug; the drop itself is silent by contract.
func pruneExpired(recs []*task.Record, now time.Time, log logx.Logger) []*task.Record {
	kept := recs[:0]
	dropped := 0
	for _, r := range recs {
		if !r.DueTime.After(now) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	if dropped > 0 {
		log.Debug("dropped expired tasks on load", logx.Int("dropped", dropped), logx.Int("kept", len(kept)))
	}
	return kept
}
