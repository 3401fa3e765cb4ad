package config

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Policy    PolicyConfig    `yaml:"policy"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Quota     QuotaConfig     `yaml:"quota"`
	Storage   *StorageConfig  `yaml:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	OwnerUserIDs []int64 `yaml:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `yaml:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SchedulerConfig controls the campaign tick loop.
//
// Defaults (when fields are omitted/zero):
//   - tick: "5s"
//   - queue_depth: 64 (per-platform dispatch queue)
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Tick is a Go duration string (e.g. "5s", "1m").
	Tick       string `yaml:"tick,omitempty"`
	QueueDepth int    `yaml:"queue_depth,omitempty"`
}

// PolicyConfig controls message content validation.
//
// An omitted blocklist falls back to the built-in prohibited keyword set;
// an explicit empty list disables keyword matching entirely.
type PolicyConfig struct {
	MaxLength    int      `yaml:"max_length,omitempty"`     // default 1000
	MaxCapsRatio float64  `yaml:"max_caps_ratio,omitempty"` // default 0.5
	Blocklist    []string `yaml:"blocklist,omitempty"`
}

// DispatchConfig controls send retries and the adapter timeout.
//
// All durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - retry_max: 3
//   - retry_base: "500ms"
//   - retry_max_delay: "15s"
//   - retry_jitter: 0.2
//   - adapter_timeout: "10s"
type DispatchConfig struct {
	RetryMax       int     `yaml:"retry_max,omitempty"`
	RetryBase      string  `yaml:"retry_base,omitempty"`
	RetryMaxDelay  string  `yaml:"retry_max_delay,omitempty"`
	RetryJitter    float64 `yaml:"retry_jitter,omitempty"`
	AdapterTimeout string  `yaml:"adapter_timeout,omitempty"`
}

// QuotaConfig controls daily quota accounting.
//
// Timezone is the IANA reference timezone for the day boundary
// (default "UTC"). PruneAfterDays controls the optional daily cleanup
// of stale counters; 0 keeps counters forever.
type QuotaConfig struct {
	Timezone       string `yaml:"timezone,omitempty"`
	PruneAfterDays int    `yaml:"prune_after_days,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	storage:
//	  driver: sqlite
//	  path: ./campbot.db
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
