package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now()
	cmd, err := task.NewCommand(task.KindWebhook, task.WebhookParams{URL: "https://example.com/hook"})
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	recs := []*task.Record{
		{
			ID:        "task_1",
			DueTime:   now.Add(1000 * time.Second),
			Priority:  2,
			Payload:   cmd,
			CreatedAt: now,
		},
		{
			ID:        "task_2",
			DueTime:   now.Add(2000 * time.Second),
			Priority:  1,
			Payload:   task.Command{Kind: task.KindNoop},
			Recurring: true,
			Interval:  30 * time.Second,
		},
	}

	if err := st.Save(context.Background(), recs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d records, want 2", len(got))
	}

	byID := map[string]*task.Record{}
	for _, r := range got {
		byID[r.ID] = r
	}
	r1 := byID["task_1"]
	if r1 == nil {
		t.Fatal("task_1 missing after reload")
	}
	if r1.Priority != 2 || r1.Payload.Kind != task.KindWebhook {
		t.Fatalf("task_1 mismatch: %+v", r1)
	}
	if r1.DueTime.Unix() != recs[0].DueTime.Unix() {
		t.Fatalf("task_1 due = %v, want %v", r1.DueTime, recs[0].DueTime)
	}
	r2 := byID["task_2"]
	if r2 == nil || !r2.Recurring || r2.Interval != 30*time.Second {
		t.Fatalf("task_2 mismatch: %+v", r2)
	}
}

func TestFileStoreDropsExpiredOnLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now()
	recs := []*task.Record{
		{ID: "expired", DueTime: now.Add(-10 * time.Second), Priority: 1, Payload: task.Command{Kind: task.KindNoop}},
		{ID: "future", DueTime: now.Add(1000 * time.Second), Priority: 1, Payload: task.Command{Kind: task.KindNoop}},
	}
	if err := st.Save(context.Background(), recs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "future" {
		t.Fatalf("expected only the future task, got %v", got)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "never-written.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %d", len(got))
	}
}

func TestFileStoreFullOverwrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now()
	mk := func(id string) []*task.Record {
		return []*task.Record{{ID: id, DueTime: now.Add(time.Hour), Priority: 1, Payload: task.Command{Kind: task.KindNoop}}}
	}
	if err := st.Save(context.Background(), mk("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Save(context.Background(), mk("second")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "second" {
		t.Fatalf("snapshot not fully overwritten: %v", got)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil store when disabled")
	}
}
