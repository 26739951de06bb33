package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls the cron dispatch loop.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Queue controls the job execution queue.
	Queue QueueConfig `json:"queue"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Bus     LoggingBus  `json:"bus"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingBus mirrors log lines onto the in-process event bus so
// subscribers (an admin surface, tests) can observe them.
type LoggingBus struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the cron dispatch loop.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Tick is a Go duration string (e.g. "30s", "1m").
	// It sets how often due schedules are swept. Default: "1m".
	Tick string `json:"tick,omitempty"`

	// Timezone is an IANA zone name used when evaluating schedules.
	// Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

// QueueConfig controls the job execution queue.
type QueueConfig struct {
	// Resume resubmits persisted unfinished jobs at startup.
	// Requires storage to be enabled.
	Resume bool `json:"resume"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./jobd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
