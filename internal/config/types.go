package config

// Config is the engine's configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Files may be JSON or YAML; both are decoded strictly, so unknown
// fields are rejected rather than silently ignored.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Webhook   *WebhookConfig  `json:"webhook,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// SchedulerConfig controls the poll loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "60s"
//   - stop_timeout: "5s"
//   - dispatch_timeout: "0s" (disabled)
//   - compaction_floor: 64
//   - history_size: 200
type SchedulerConfig struct {
	PollInterval    string `json:"poll_interval,omitempty"`
	StopTimeout     string `json:"stop_timeout,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	CompactionFloor int    `json:"compaction_floor,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig selects the snapshot backend. If the whole section is
// omitted, persistence is disabled and the engine runs in memory only.
type StorageConfig struct {
	Driver      string `json:"driver"` // "file", "sqlite", "none"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// WebhookConfig controls the outbound webhook executor.
type WebhookConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
}
