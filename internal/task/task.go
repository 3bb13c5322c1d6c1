package task

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrValidation marks requests rejected before anything is scheduled or
// persisted. Wrap it with %w so callers can errors.Is against it.
var ErrValidation = errors.New("validation error")

// cronParser accepts 5-field crontab expressions plus descriptors
// ("@hourly", "@every 55m").
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Record is one scheduled unit of work.
//
// A Record is effectively immutable once created: recurrence does not
// mutate the record, it synthesizes a successor with a derived id (see
// NextRun). Uniqueness of ID holds only among active records; once a
// record is executed or cancelled its id may be reused.
type Record struct {
	ID       string
	DueTime  time.Time
	Priority int
	Payload  Command

	Recurring bool
	Interval  time.Duration // required > 0 when Recurring and CronExpr is empty
	CronExpr  string        // optional cron recurrence; takes precedence over Interval

	CreatedAt time.Time // informational only, never used for ordering
}

// Validate checks creation-time invariants.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: task id required", ErrValidation)
	}
	if r.DueTime.IsZero() {
		return fmt.Errorf("%w: due time required", ErrValidation)
	}
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if r.Recurring {
		if r.CronExpr != "" {
			if _, err := cronParser.Parse(r.CronExpr); err != nil {
				return fmt.Errorf("%w: invalid cron expression %q: %v", ErrValidation, r.CronExpr, err)
			}
		} else if r.Interval <= 0 {
			return fmt.Errorf("%w: recurring task requires a positive interval", ErrValidation)
		}
	}
	return nil
}

// NextRun synthesizes the successor record for a recurring task.
//
// The next due time is anchored at the actual dispatch time, not the
// original due time, so a delayed run shifts the whole series. That is
// the engine's documented drift behavior; callers who need fixed-grid
// firing should use a cron expression instead, which computes the next
// occurrence on the grid following the dispatch time.
func (r *Record) NextRun(dispatchedAt time.Time) (*Record, error) {
	if !r.Recurring {
		return nil, fmt.Errorf("task %s is not recurring", r.ID)
	}

	var next time.Time
	if r.CronExpr != "" {
		sched, err := cronParser.Parse(r.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", r.CronExpr, err)
		}
		next = sched.Next(dispatchedAt)
	} else {
		next = dispatchedAt.Add(r.Interval)
	}

	nr := *r
	nr.ID = deriveRunID(r.ID)
	nr.DueTime = next
	nr.CreatedAt = dispatchedAt
	return &nr, nil
}

// deriveRunID appends or bumps a "#n" run counter so each occurrence of
// a recurring series is a fresh entity with its own id.
func deriveRunID(id string) string {
	base := id
	n := 0
	if i := strings.LastIndexByte(id, '#'); i >= 0 {
		if v, err := strconv.Atoi(id[i+1:]); err == nil {
			base = id[:i]
			n = v
		}
	}
	return base + "#" + strconv.Itoa(n+1)
}
