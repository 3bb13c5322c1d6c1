package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"leadpulse/internal/eventbus"
	"leadpulse/internal/executor"
	"leadpulse/internal/storage"
	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// recorder is a test executor that keeps the order of dispatched tags.
type recorder struct {
	mu   sync.Mutex
	tags []string
	fail map[string]error
}

type tagParams struct {
	Tag string `json:"tag"`
}

func tagCmd(t *testing.T, tag string) task.Command {
	t.Helper()
	raw, err := json.Marshal(tagParams{Tag: tag})
	if err != nil {
		t.Fatalf("marshal tag: %v", err)
	}
	return task.Command{Kind: task.KindNoop, Params: raw}
}

func (r *recorder) Execute(ctx context.Context, cmd task.Command) error {
	_ = ctx
	var p tagParams
	_ = json.Unmarshal(cmd.Params, &p)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, p.Tag)
	if r.fail != nil {
		if err, ok := r.fail[p.Tag]; ok {
			return err
		}
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

func pastSpec(d time.Duration) string {
	return "at:" + time.Now().Add(-d).Format(time.RFC3339)
}

func newTestService(t *testing.T, rec *recorder, store storage.Store) *Service {
	t.Helper()
	return New(Config{PollInterval: time.Hour}, rec, store, nil, logx.Nop())
}

func TestDispatchOrderPriorityBreaksTies(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newTestService(t, rec, nil)

	due := pastSpec(5 * time.Second)
	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: tagCmd(t, "B"), ExecutionTime: due, Priority: 2, TaskID: "B",
	}); err != nil {
		t.Fatalf("Schedule B: %v", err)
	}
	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: tagCmd(t, "A"), ExecutionTime: due, Priority: 1, TaskID: "A",
	}); err != nil {
		t.Fatalf("Schedule A: %v", err)
	}

	s.ScanNow(context.Background())

	got := rec.seen()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("dispatch order = %v, want [A B]", got)
	}
	if st := s.Stats(); st.TotalExecuted != 2 || st.TasksInQueue != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRecurringReschedulesFromDispatchTime(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newTestService(t, rec, nil)

	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload:            tagCmd(t, "C"),
		ExecutionTime:      pastSpec(30 * time.Second),
		TaskID:             "C",
		Recurring:          true,
		RecurrenceInterval: 10 * time.Second,
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	before := time.Now()
	s.ScanNow(context.Background())
	after := time.Now()

	pending := s.ListPending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want exactly 1 successor", len(pending))
	}
	p := pending[0]
	if p.TaskID != "C#1" {
		t.Fatalf("successor id = %q, want C#1", p.TaskID)
	}
	// Next due is anchored at dispatch time, not the original due time.
	lo := before.Add(10 * time.Second)
	hi := after.Add(10 * time.Second)
	if p.ExecutionTime.Before(lo) || p.ExecutionTime.After(hi) {
		t.Fatalf("next due %v outside [%v, %v]", p.ExecutionTime, lo, hi)
	}
}

func TestRecurringSeriesSurvivesExecutorFailure(t *testing.T) {
	t.Parallel()
	rec := &recorder{fail: map[string]error{"C": errors.New("boom")}}
	s := newTestService(t, rec, nil)

	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload:            tagCmd(t, "C"),
		ExecutionTime:      pastSpec(time.Second),
		TaskID:             "C",
		Recurring:          true,
		RecurrenceInterval: 10 * time.Second,
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.ScanNow(context.Background())

	// Failure is counted as executed and the successor is still queued.
	if st := s.Stats(); st.TotalExecuted != 1 || st.TasksInQueue != 1 {
		t.Fatalf("stats = %+v", st)
	}
	snap := s.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Error == "" {
		t.Fatalf("history = %+v", snap.History)
	}
}

func TestCancelPreventsDispatch(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newTestService(t, rec, nil)

	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: tagCmd(t, "D"), ExecutionTime: "+1000s", TaskID: "D",
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(s.ListPending()) != 1 {
		t.Fatal("expected 1 pending before cancel")
	}

	if err := s.Cancel(context.Background(), "D"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Cancel(context.Background(), "D"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second cancel: expected ErrNotFound, got %v", err)
	}
	if len(s.ListPending()) != 0 {
		t.Fatal("cancelled task still listed")
	}

	s.ScanNow(context.Background())
	if got := rec.seen(); len(got) != 0 {
		t.Fatalf("cancelled task reached the executor: %v", got)
	}
}

func TestExecutorPanicIsolated(t *testing.T) {
	t.Parallel()
	panicker := executor.Func(func(ctx context.Context, cmd task.Command) error {
		panic("handler exploded")
	})
	s := New(Config{PollInterval: time.Hour}, panicker, nil, nil, logx.Nop())

	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: pastSpec(time.Second),
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.ScanNow(context.Background()) // must not panic through

	st := s.Stats()
	if st.TotalExecuted != 1 {
		t.Fatalf("executed = %d, want 1", st.TotalExecuted)
	}
	snap := s.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Error == "" {
		t.Fatalf("panic not recorded in history: %+v", snap.History)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(t, &recorder{}, nil)

	// Unresolvable execution time.
	_, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: "whenever",
	})
	if !errors.Is(err, task.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Recurring without interval.
	_, err = s.Schedule(context.Background(), ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: "+1m", Recurring: true,
	})
	if !errors.Is(err, task.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Duplicate active id.
	if _, err := s.Schedule(context.Background(), ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: "+1m", TaskID: "dup",
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	_, err = s.Schedule(context.Background(), ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: "+1m", TaskID: "dup",
	})
	if !errors.Is(err, task.ErrValidation) {
		t.Fatalf("expected validation error for duplicate id, got %v", err)
	}

	// Nothing was counted for the rejected requests.
	if st := s.Stats(); st.TotalScheduled != 1 {
		t.Fatalf("total scheduled = %d, want 1", st.TotalScheduled)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()

	rec := &recorder{fail: map[string]error{"bad": errors.New("boom")}}
	s := New(Config{PollInterval: time.Hour}, rec, nil, bus, logx.Nop())
	ctx := context.Background()

	for _, req := range []ScheduleRequest{
		{Payload: tagCmd(t, "ok"), ExecutionTime: pastSpec(time.Second), TaskID: "ok"},
		{Payload: tagCmd(t, "bad"), ExecutionTime: pastSpec(time.Second), TaskID: "bad"},
		{Payload: tagCmd(t, "gone"), ExecutionTime: "+1h", TaskID: "gone"},
	} {
		if _, err := s.Schedule(ctx, req); err != nil {
			t.Fatalf("Schedule(%s): %v", req.TaskID, err)
		}
	}
	if err := s.Cancel(ctx, "gone"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	s.ScanNow(ctx)

	// 3 scheduled + 1 cancelled + 1 dispatched + 1 failed; all publishes
	// happened synchronously above, so the buffer already holds them.
	got := map[string][]string{}
	for i := 0; i < 6; i++ {
		select {
		case ev := <-events:
			got[ev.Type] = append(got[ev.Type], ev.TaskID)
		default:
			t.Fatalf("only %d events published, got %v", i, got)
		}
	}
	if ids := got[eventbus.TypeTaskScheduled]; len(ids) != 3 {
		t.Fatalf("scheduled events = %v, want 3", ids)
	}
	if ids := got[eventbus.TypeTaskCancelled]; len(ids) != 1 || ids[0] != "gone" {
		t.Fatalf("cancelled events = %v, want [gone]", ids)
	}
	if ids := got[eventbus.TypeTaskDispatched]; len(ids) != 1 || ids[0] != "ok" {
		t.Fatalf("dispatched events = %v, want [ok]", ids)
	}
	if ids := got[eventbus.TypeTaskFailed]; len(ids) != 1 || ids[0] != "bad" {
		t.Fatalf("failed events = %v, want [bad]", ids)
	}
}

func TestCancelDuringDispatchWindow(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := executor.Func(func(ctx context.Context, cmd task.Command) error {
		close(started)
		<-release
		return nil
	})
	s := New(Config{PollInterval: time.Hour}, blocking, nil, nil, logx.Nop())
	ctx := context.Background()

	if _, err := s.Schedule(ctx, ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: pastSpec(time.Second), TaskID: "F",
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.ScanNow(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never entered")
	}

	// The record already left the index when the scan captured it into
	// its ready batch: cancel can no longer find it, and cannot stop
	// the in-flight dispatch.
	if err := s.Cancel(ctx, "F"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancel mid-dispatch: expected ErrNotFound, got %v", err)
	}
	if len(s.ListPending()) != 0 {
		t.Fatal("in-flight task still listed as pending")
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never finished")
	}

	if st := s.Stats(); st.TotalExecuted != 1 {
		t.Fatalf("executed = %d, want 1 (dispatch completes despite cancel)", st.TotalExecuted)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	s := New(Config{PollInterval: 10 * time.Millisecond, StopTimeout: time.Second},
		&recorder{}, nil, nil, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	if !s.Running() {
		t.Fatal("expected running after Start")
	}
	s.Start(ctx) // idempotent

	if _, err := s.Schedule(ctx, ScheduleRequest{
		Payload: task.Command{Kind: task.KindNoop}, ExecutionTime: pastSpec(time.Second), TaskID: "live",
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// The poll loop should pick it up without a forced scan.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().TotalExecuted >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.Stats().TotalExecuted < 1 {
		t.Fatal("poll loop never dispatched the due task")
	}

	s.Stop(ctx)
	if s.Running() {
		t.Fatal("expected stopped after Stop")
	}
	s.Stop(ctx) // idempotent
}

func TestPersistAcrossRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	open := func() storage.Store {
		st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "tasks.json")}, logx.Nop())
		if err != nil {
			t.Fatalf("storage.Open: %v", err)
		}
		return st
	}

	s1 := newTestService(t, &recorder{}, open())
	ctx := context.Background()
	if _, err := s1.Schedule(ctx, ScheduleRequest{
		Payload: tagCmd(t, "E"), ExecutionTime: "+1000s", TaskID: "E", Priority: 3,
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Fresh engine instance over the same snapshot file.
	s2 := newTestService(t, &recorder{}, open())
	s2.Start(ctx)
	defer s2.Stop(ctx)

	pending := s2.ListPending()
	if len(pending) != 1 || pending[0].TaskID != "E" || pending[0].Priority != 3 {
		t.Fatalf("restored pending = %+v", pending)
	}
}

func TestConcurrentScheduleCancel(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := New(Config{PollInterval: 5 * time.Millisecond, StopTimeout: time.Second},
		rec, nil, nil, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	const perCaller = 50
	var wg sync.WaitGroup
	for c := 0; c < 2; c++ {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perCaller; i++ {
				id := fmt.Sprintf("caller%d_%d", c, i)
				if _, err := s.Schedule(ctx, ScheduleRequest{
					Payload: tagCmd(t, id), ExecutionTime: "+1h", TaskID: id,
				}); err != nil {
					t.Errorf("Schedule(%s): %v", id, err)
					return
				}
				// Cancel every other task right back.
				if i%2 == 1 {
					if err := s.Cancel(ctx, id); err != nil {
						t.Errorf("Cancel(%s): %v", id, err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	st := s.Stats()
	want := 2 * perCaller / 2 // half of each caller's tasks survive
	if st.TasksInQueue != want {
		t.Fatalf("tasks in queue = %d, want %d (no lost updates)", st.TasksInQueue, want)
	}
	if st.TotalScheduled != 2*perCaller {
		t.Fatalf("total scheduled = %d, want %d", st.TotalScheduled, 2*perCaller)
	}
	if got := rec.seen(); len(got) != 0 {
		t.Fatalf("far-future tasks were dispatched: %v", got)
	}
}
