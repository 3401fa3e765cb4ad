package app

import (
	"time"

	"campbot/internal/config"
	"campbot/internal/dispatch"
	"campbot/internal/policy"
	"campbot/internal/scheduler"
	"campbot/internal/storage"
	logx "campbot/pkg/logx"
)

// The map* helpers translate the file config into component configs, with
// duration strings parsed and defaults left to each component.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapPolicyConfig(cfg *config.Config) policy.Config {
	return policy.Config{
		MaxLength:    cfg.Policy.MaxLength,
		MaxCapsRatio: cfg.Policy.MaxCapsRatio,
		Blocklist:    cfg.Policy.Blocklist,
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	base, err := config.ParseDurationOrDefault("dispatch.retry_base", cfg.Dispatch.RetryBase, 0)
	if err != nil {
		return dispatch.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("dispatch.retry_max_delay", cfg.Dispatch.RetryMaxDelay, 0)
	if err != nil {
		return dispatch.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("dispatch.adapter_timeout", cfg.Dispatch.AdapterTimeout, 0)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		RetryMax:       cfg.Dispatch.RetryMax,
		RetryBase:      base,
		RetryMaxDelay:  maxDelay,
		RetryJitter:    cfg.Dispatch.RetryJitter,
		AdapterTimeout: timeout,
		QueueDepth:     cfg.Scheduler.QueueDepth,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled: cfg.Scheduler.Enabled,
		Tick:    tick,
	}, nil
}

// mapStorageConfig returns enabled=false when no storage block is present.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapQuotaLocation(cfg *config.Config) (*time.Location, error) {
	tz := cfg.Quota.Timezone
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
