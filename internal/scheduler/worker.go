package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"leadpulse/internal/eventbus"
	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// run is the single background worker: scan on every poll tick, on
// demand via ScanNow, and exit when stopCh closes.
func (s *Service) run(stopCh <-chan struct{}, scanCh <-chan chan struct{}) {
	defer func() {
		s.lcMu.Lock()
		done := s.stopDone
		s.stopCh = nil
		s.stopDone = nil
		s.scanCh = nil
		s.lcMu.Unlock()
		if done != nil {
			close(done)
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.safeScan()
		case ack := <-scanCh:
			s.safeScan()
			close(ack)
		}
	}
}

// safeScan isolates one scan pass: a panic is logged and the loop
// simply waits for the next tick.
func (s *Service) safeScan() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduler scan",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	s.scan()
}

// scan pops everything due, reschedules recurring tasks, dispatches the
// ready batch outside the lock, and persists once afterwards.
func (s *Service) scan() {
	now := time.Now()

	s.mu.Lock()
	ready := s.q.PopDue(now)

	// Recurring tasks push their successor BEFORE dispatch, so the
	// series survives a failed or panicking executor call.
	for _, r := range ready {
		if !r.Recurring {
			continue
		}
		next, err := r.NextRun(now)
		if err != nil {
			s.log.Error("failed to compute next occurrence; series ends",
				logx.String("task_id", r.ID), logx.Err(err))
			continue
		}
		if err := s.q.Push(next); err != nil {
			s.log.Error("failed to requeue recurring task",
				logx.String("task_id", next.ID), logx.Err(err))
		}
	}

	if s.q.NeedsCompaction(s.cfg.CompactionFloor) {
		before := s.q.Tombstones()
		s.q.Compact()
		s.log.Debug("compacted task heap", logx.Int("tombstones", before))
	}
	s.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	for _, r := range ready {
		s.dispatch(r)
	}
	s.persist(context.Background())
}

// dispatch runs one ready record through the executor, outside the
// queue lock. Failures are caught, logged and counted; they never abort
// the batch or the recurring series.
func (s *Service) dispatch(r *task.Record) {
	runID := uuid.NewString()
	start := time.Now()

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.cfg.DispatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	}

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &panicError{val: rec}
				s.log.Error("panic in executor",
					logx.String("task_id", r.ID), logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		return s.exec.Execute(ctx, r.Payload)
	}()
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{
		RunID:    runID,
		TaskID:   r.ID,
		Kind:     string(r.Payload.Kind),
		Started:  start,
		Duration: dur,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task execution failed",
			logx.String("task_id", r.ID),
			logx.String("kind", string(r.Payload.Kind)),
			logx.Duration("took", dur),
			logx.Err(err),
		)
		s.publish(eventbus.TypeTaskFailed, r.ID, item)
	} else {
		s.log.Info("task executed",
			logx.String("task_id", r.ID),
			logx.String("kind", string(r.Payload.Kind)),
			logx.Duration("took", dur),
		)
		s.publish(eventbus.TypeTaskDispatched, r.ID, item)
	}

	// Executed means "dispatched": success and failure are not
	// distinguished in the counters. Failure detail lives in the
	// history and the event stream.
	s.smu.Lock()
	s.totalExecuted++
	s.lastExecution = start
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.smu.Unlock()
}

// persist snapshots the current pending set. The queue lock covers only
// the snapshot copy, never the write itself. A failed save is logged
// and scheduling continues in memory.
func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	recs := s.q.List()
	s.mu.Unlock()

	if err := s.store.Save(ctx, recs); err != nil {
		s.log.Error("failed to persist task snapshot", logx.Err(err), logx.Int("pending", len(recs)))
	}
}

func (s *Service) publish(typ, taskID string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, TaskID: taskID, Data: data})
}

type panicError struct{ val any }

func (e *panicError) Error() string { return fmt.Sprintf("executor panic: %v", e.val) }
