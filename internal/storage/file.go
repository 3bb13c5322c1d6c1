package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// fileStore is the dependency-free persistence backend: one JSON file
// holding the full pending set, rewritten in place on every save.
//
// The rewrite is a plain truncate+write, not an atomic rename. A crash
// mid-write can corrupt the previous snapshot; the engine treats that as
// an accepted durability gap rather than layering a journal on top.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]*task.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}

	var snaps []snapshotRecord
	if err := json.Unmarshal(b, &snaps); err != nil {
		return nil, err
	}

	recs := make([]*task.Record, 0, len(snaps))
	for _, sr := range snaps {
		r, err := fromSnapshot(sr)
		if err != nil {
			// One bad record should not sink the whole snapshot.
			s.log.Warn("skipping undecodable snapshot record", logx.String("task_id", sr.TaskID), logx.Err(err))
			continue
		}
		recs = append(recs, r)
	}
	return pruneExpired(recs, time.Now(), s.log), nil
}

func (s *fileStore) Save(ctx context.Context, records []*task.Record) error {
	_ = ctx
	snaps := make([]snapshotRecord, 0, len(records))
	for _, r := range records {
		sr, err := toSnapshot(r)
		if err != nil {
			return err
		}
		snaps = append(snaps, sr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(snaps); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *fileStore) Close() error { return nil }
