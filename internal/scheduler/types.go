package scheduler

import (
	"errors"
	"sync"
	"time"

	"leadpulse/internal/eventbus"
	"leadpulse/internal/executor"
	"leadpulse/internal/queue"
	"leadpulse/internal/storage"
	logx "leadpulse/pkg/logx"
)

// ErrNotFound is returned by Cancel for ids with no active record.
var ErrNotFound = errors.New("task not found")

// Config controls the scheduler service.
type Config struct {
	// PollInterval is how often the worker scans for due tasks (default 60s).
	PollInterval time.Duration

	// StopTimeout bounds how long Stop waits for the worker to exit
	// (default 5s). A worker blocked inside an executor call past the
	// timeout finishes in the background.
	StopTimeout time.Duration

	// DispatchTimeout is applied per executor call via context.
	// 0 disables it (a stuck executor then stalls its batch slot,
	// never scheduler state).
	DispatchTimeout time.Duration

	// CompactionFloor is the tombstone count below which the heap is
	// never rebuilt (default 64).
	CompactionFloor int

	// HistorySize bounds the in-memory execution history (default 200).
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.CompactionFloor <= 0 {
		c.CompactionFloor = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Stats is the read-only counter surface.
type Stats struct {
	TotalScheduled uint64
	TotalExecuted  uint64
	TasksInQueue   int
	LastExecution  time.Time
}

// PendingTask is one row of ListPending, display only.
type PendingTask struct {
	TaskID        string
	ExecutionTime time.Time
	Priority      int
	Recurring     bool
	Summary       string
}

// HistoryItem records one executor dispatch.
type HistoryItem struct {
	RunID    string
	TaskID   string
	Kind     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// Snapshot is the diagnostic surface for operators.
type Snapshot struct {
	Running      bool
	PollInterval time.Duration
	QueueLen     int
	Tombstones   int
	Stats        Stats
	History      []HistoryItem
}

// Service is the scheduling engine. One background worker scans the
// queue; any number of callers may Schedule/Cancel/ListPending/Stats
// concurrently. All collaborators are injected; the service holds no
// process-wide state.
type Service struct {
	log   logx.Logger
	cfg   Config
	bus   eventbus.Bus
	store storage.Store // nil disables persistence
	exec  executor.Executor

	// mu guards the queue and index only. Executor dispatch and disk
	// I/O always happen outside this lock.
	mu       sync.Mutex
	q        *queue.Queue
	restored bool

	idSeq uint64 // monotonic piece of generated task ids

	// lifecycle
	lcMu     sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	scanCh   chan chan struct{}

	// stats and history, updated by the worker and by Schedule/Cancel
	smu            sync.Mutex
	totalScheduled uint64
	totalExecuted  uint64
	lastExecution  time.Time
	history        []HistoryItem
}
