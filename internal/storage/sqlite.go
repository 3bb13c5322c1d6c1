//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]*task.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, priority, task_id, task_data, recurring, recurrence_interval, cron_expr, created_at
		 FROM tasks ORDER BY timestamp, priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*task.Record
	for rows.Next() {
		var sr snapshotRecord
		var data string
		var cron sql.NullString
		if err := rows.Scan(&sr.Timestamp, &sr.Priority, &sr.TaskID, &data,
			&sr.Recurring, &sr.RecurrenceInterval, &cron, &sr.CreatedAt); err != nil {
			return nil, err
		}
		sr.TaskData = []byte(data)
		sr.CronExpr = cron.String
		r, err := fromSnapshot(sr)
		if err != nil {
			s.log.Warn("skipping undecodable task row", logx.String("task_id", sr.TaskID), logx.Err(err))
			continue
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pruneExpired(recs, time.Now(), s.log), nil
}

// Save replaces the whole table: the snapshot contract is a full
// overwrite of the pending set, same as the file driver.
func (s *sqliteStore) Save(ctx context.Context, records []*task.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	for _, r := range records {
		sr, err := toSnapshot(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(timestamp, priority, task_id, task_data, recurring, recurrence_interval, cron_expr, created_at)
			 VALUES(?,?,?,?,?,?,?,?)`,
			sr.Timestamp, sr.Priority, sr.TaskID, string(sr.TaskData),
			sr.Recurring, sr.RecurrenceInterval, nullStr(sr.CronExpr), sr.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
