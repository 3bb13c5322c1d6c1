package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"leadpulse/internal/eventbus"
	"leadpulse/internal/executor"
	"leadpulse/internal/queue"
	"leadpulse/internal/storage"
	logx "leadpulse/pkg/logx"
)

// New wires a scheduler from its collaborators. store may be nil
// (persistence disabled) and bus may be nil (no lifecycle events).
func New(cfg Config, exec executor.Executor, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		cfg:   cfg.withDefaults(),
		bus:   bus,
		store: store,
		exec:  exec,
		q:     queue.New(),
	}
}

// Start transitions stopped -> running by spawning exactly one worker.
// Calling it while running is a no-op. The first Start restores the
// pending set from the store.
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete
	// (prevents a second worker while the first drains).
	for {
		s.lcMu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.lcMu.Unlock()
			s.log.Debug("start requested while running; ignoring")
			return
		}
		s.lcMu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}
	stopCh := make(chan struct{})
	scanCh := make(chan chan struct{}, 1)
	s.stopCh = stopCh
	s.scanCh = scanCh
	s.lcMu.Unlock()

	s.restoreOnce(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler worker",
					logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.run(stopCh, scanCh)
	}()

	s.mu.Lock()
	pending := s.q.Len()
	s.mu.Unlock()
	s.log.Info("scheduler started",
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Int("pending", pending),
	)
}

// Stop signals cooperative termination and waits up to StopTimeout for
// the worker to exit. If the worker is blocked inside an executor call
// past the timeout, Stop returns anyway and the worker exits after the
// call completes. There is no forced preemption.
func (s *Service) Stop(ctx context.Context) {
	s.lcMu.Lock()
	if s.stopCh == nil {
		s.lcMu.Unlock()
		return
	}
	if s.stopDone != nil {
		// a stop is already in progress; wait best-effort
		done := s.stopDone
		s.lcMu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	s.lcMu.Unlock()

	start := time.Now()
	close(stopCh)

	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("scheduler stop timed out; worker will exit after the in-flight dispatch",
			logx.Duration("waited", s.cfg.StopTimeout))
	case <-ctx.Done():
	}
}

// Running reports whether the background worker is active.
func (s *Service) Running() bool {
	s.lcMu.Lock()
	defer s.lcMu.Unlock()
	return s.stopCh != nil && s.stopDone == nil
}

// ScanNow forces one scan pass and waits for it to finish. Used by
// operator tooling and tests; the periodic poll does not depend on it.
func (s *Service) ScanNow(ctx context.Context) {
	s.lcMu.Lock()
	scanCh := s.scanCh
	running := s.stopCh != nil && s.stopDone == nil
	s.lcMu.Unlock()
	if !running || scanCh == nil {
		// Not running: scan inline so tests can drive time explicitly.
		s.scan()
		return
	}
	ack := make(chan struct{})
	select {
	case scanCh <- ack:
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// restoreOnce loads the persisted pending set on the first Start.
func (s *Service) restoreOnce(ctx context.Context) {
	s.mu.Lock()
	already := s.restored
	s.restored = true
	s.mu.Unlock()
	if already || s.store == nil {
		return
	}

	recs, err := s.store.Load(ctx)
	if err != nil {
		s.log.Error("failed to load task snapshot; starting empty", logx.Err(err))
		return
	}
	if len(recs) == 0 {
		return
	}

	s.mu.Lock()
	restored := 0
	for _, r := range recs {
		if err := s.q.Push(r); err != nil {
			s.log.Warn("skipping snapshot record", logx.String("task_id", r.ID), logx.Err(err))
			continue
		}
		restored++
	}
	s.mu.Unlock()
	s.log.Info("restored pending tasks from snapshot", logx.Int("count", restored))
}
