package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"leadpulse/internal/eventbus"
	"leadpulse/internal/queue"
	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// ScheduleRequest describes one task to schedule.
type ScheduleRequest struct {
	// Payload is the command the executor will receive, unmodified.
	Payload task.Command

	// ExecutionTime is a due-time spec: RFC3339, "2006-01-02 15:04:05",
	// epoch seconds, or an offset like "+5m" / "in:90s".
	ExecutionTime string

	// Priority breaks ties among equal due times; lower fires first.
	// 0 means the default priority 1.
	Priority int

	// TaskID is optional; a unique id is generated when empty.
	TaskID string

	Recurring          bool
	RecurrenceInterval time.Duration // required > 0 when Recurring and CronExpr empty
	CronExpr           string        // optional cron recurrence
}

// ScheduleResult reports the resolved id and execution time.
type ScheduleResult struct {
	TaskID        string
	ExecutionTime time.Time
}

// Schedule validates, enqueues and persists one task. Safe for
// concurrent callers; the caller blocks only for the queue mutation,
// never for executor work.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	now := time.Now()

	due, err := task.ParseDueTime(req.ExecutionTime, now)
	if err != nil {
		return ScheduleResult{}, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = 1
	}

	id := strings.TrimSpace(req.TaskID)
	if id == "" {
		id = s.generateID(now)
	}

	rec := &task.Record{
		ID:        id,
		DueTime:   due,
		Priority:  priority,
		Payload:   req.Payload,
		Recurring: req.Recurring,
		Interval:  req.RecurrenceInterval,
		CronExpr:  req.CronExpr,
		CreatedAt: now,
	}
	if err := rec.Validate(); err != nil {
		return ScheduleResult{}, err
	}

	s.mu.Lock()
	err = s.q.Push(rec)
	s.mu.Unlock()
	if errors.Is(err, queue.ErrDuplicateID) {
		return ScheduleResult{}, fmt.Errorf("%w: task id %q already active", task.ErrValidation, id)
	}
	if err != nil {
		return ScheduleResult{}, err
	}

	s.smu.Lock()
	s.totalScheduled++
	s.smu.Unlock()

	s.persist(ctx)
	s.publish(eventbus.TypeTaskScheduled, id, ScheduleResult{TaskID: id, ExecutionTime: due})
	s.log.Debug("task scheduled",
		logx.String("task_id", id),
		logx.Time("due", due),
		logx.Int("priority", priority),
		logx.Bool("recurring", rec.Recurring),
	)

	return ScheduleResult{TaskID: id, ExecutionTime: due}, nil
}

// Cancel tombstones an active task. Cancellation only prevents future
// firing: a record already captured in an in-flight ready batch still
// executes.
func (s *Service) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	ok := s.q.Cancel(taskID)
	compact := ok && s.q.NeedsCompaction(s.cfg.CompactionFloor)
	if compact {
		s.q.Compact()
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	s.persist(ctx)
	s.publish(eventbus.TypeTaskCancelled, taskID, nil)
	s.log.Debug("task cancelled", logx.String("task_id", taskID), logx.Bool("compacted", compact))
	return nil
}

// ListPending returns the active set ordered by (due time, priority).
func (s *Service) ListPending() []PendingTask {
	s.mu.Lock()
	recs := s.q.List()
	s.mu.Unlock()

	out := make([]PendingTask, 0, len(recs))
	for _, r := range recs {
		out = append(out, PendingTask{
			TaskID:        r.ID,
			ExecutionTime: r.DueTime,
			Priority:      r.Priority,
			Recurring:     r.Recurring,
			Summary:       r.Payload.Summary(),
		})
	}
	return out
}

// Stats returns the counter surface.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	inQueue := s.q.Len()
	s.mu.Unlock()

	s.smu.Lock()
	defer s.smu.Unlock()
	return Stats{
		TotalScheduled: s.totalScheduled,
		TotalExecuted:  s.totalExecuted,
		TasksInQueue:   inQueue,
		LastExecution:  s.lastExecution,
	}
}

// generateID derives a unique id from a monotonic counter plus the
// current time. Uniqueness only needs to hold among active records.
func (s *Service) generateID(now time.Time) string {
	seq := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("task_%d_%d", now.Unix(), seq)
}
