// Package config loads and validates the Wrangler configuration via viper.
// Configuration is plain data: the coordinator consumes immutable snapshots
// of it and hot-swaps them on file change without restarting.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the complete Wrangler configuration.
type Config struct {
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Resources   ResourceConfig    `mapstructure:"resources"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CleanupConfig controls when idle and finished workers advance toward
// destruction.
type CleanupConfig struct {
	// CompletedTeamDelaySeconds is the grace period after a team completes
	// before its workers are pooled or destroyed.
	CompletedTeamDelaySeconds int `mapstructure:"completed_team_delay_seconds"`
	// FailedTeamDelaySeconds is the grace period after a team fails.
	FailedTeamDelaySeconds int `mapstructure:"failed_team_delay_seconds"`
	// IdleAgentTimeoutSeconds is how long a worker may sit Idle before
	// becoming SuspendedIdle.
	IdleAgentTimeoutSeconds int `mapstructure:"idle_agent_timeout_seconds"`
	// SuspendedIdleTimeoutSeconds is how long a Suspended worker survives
	// before becoming SuspendedIdle.
	SuspendedIdleTimeoutSeconds int `mapstructure:"suspended_idle_timeout_seconds"`
	// ProcessHangTimeoutSeconds is how long a subprocess may produce no
	// output before it is considered hung.
	ProcessHangTimeoutSeconds int `mapstructure:"process_hang_timeout_seconds"`
	// SweepDelaySeconds is the pause between a worker entering SuspendedIdle
	// and the cleanup sweep destroying it.
	SweepDelaySeconds int `mapstructure:"sweep_delay_seconds"`
}

// CompletedTeamDelay returns the completed-team grace period.
func (c CleanupConfig) CompletedTeamDelay() time.Duration {
	return time.Duration(c.CompletedTeamDelaySeconds) * time.Second
}

// FailedTeamDelay returns the failed-team grace period.
func (c CleanupConfig) FailedTeamDelay() time.Duration {
	return time.Duration(c.FailedTeamDelaySeconds) * time.Second
}

// IdleAgentTimeout returns the idle-to-suspended-idle timeout.
func (c CleanupConfig) IdleAgentTimeout() time.Duration {
	return time.Duration(c.IdleAgentTimeoutSeconds) * time.Second
}

// SuspendedIdleTimeout returns the suspended-to-suspended-idle timeout.
func (c CleanupConfig) SuspendedIdleTimeout() time.Duration {
	return time.Duration(c.SuspendedIdleTimeoutSeconds) * time.Second
}

// ProcessHangTimeout returns how long an executing subprocess may stay
// silent before it is treated as hung.
func (c CleanupConfig) ProcessHangTimeout() time.Duration {
	return time.Duration(c.ProcessHangTimeoutSeconds) * time.Second
}

// SweepDelay returns the suspended-idle sweep delay.
func (c CleanupConfig) SweepDelay() time.Duration {
	return time.Duration(c.SweepDelaySeconds) * time.Second
}

// PoolConfig bounds the reusable worker pool.
type PoolConfig struct {
	// MaxPerRole caps pooled workers of a single role.
	MaxPerRole int `mapstructure:"max_per_role"`
	// MaxPoolSize caps total pooled workers.
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// TTLSeconds is how long an unreacquired pooled worker survives.
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// TTL returns the pooled-worker time to live.
func (c PoolConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ResourceConfig holds the pressure thresholds and sampling cadence.
type ResourceConfig struct {
	// MaxConcurrentWorkers is the hard limit on active workers.
	MaxConcurrentWorkers int `mapstructure:"max_concurrent_workers"`
	// MaxConcurrentProcesses is the hard limit on live subprocesses.
	MaxConcurrentProcesses int `mapstructure:"max_concurrent_processes"`
	// MemoryWarningThresholdMB is the hard memory threshold.
	MemoryWarningThresholdMB int `mapstructure:"memory_warning_threshold_mb"`
	// MemoryCriticalThresholdMB is the emergency-cleanup memory threshold.
	MemoryCriticalThresholdMB int `mapstructure:"memory_critical_threshold_mb"`
	// SampleIntervalSeconds is how often the resource monitor samples.
	SampleIntervalSeconds int `mapstructure:"sample_interval_seconds"`
	// HighPressureEvictions is how many pooled workers High pressure evicts.
	HighPressureEvictions int `mapstructure:"high_pressure_evictions"`
}

// SampleInterval returns the monitor sampling cadence.
func (c ResourceConfig) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

// PersistenceConfig controls snapshot and resumable-context storage.
type PersistenceConfig struct {
	// DataDir is the root directory for persisted state. Empty selects
	// $HOME/.wrangler.
	DataDir string `mapstructure:"data_dir"`
	// SnapshotIntervalSeconds is the periodic snapshot cadence.
	SnapshotIntervalSeconds int `mapstructure:"snapshot_interval_seconds"`
	// OutputTailLines is how many trailing output records a resumable
	// context captures.
	OutputTailLines int `mapstructure:"output_tail_lines"`
}

// SnapshotInterval returns the periodic snapshot cadence.
func (c PersistenceConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
	// Dir is where the log file is written. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// SetDefaults registers default values with viper. Call before ReadInConfig
// so defaults exist even without a config file.
func SetDefaults() {
	viper.SetDefault("cleanup.completed_team_delay_seconds", 60)
	viper.SetDefault("cleanup.failed_team_delay_seconds", 300)
	viper.SetDefault("cleanup.idle_agent_timeout_seconds", 600)
	viper.SetDefault("cleanup.suspended_idle_timeout_seconds", 1800)
	viper.SetDefault("cleanup.process_hang_timeout_seconds", 120)
	viper.SetDefault("cleanup.sweep_delay_seconds", 300)

	viper.SetDefault("pool.max_per_role", 3)
	viper.SetDefault("pool.max_pool_size", 8)
	viper.SetDefault("pool.ttl_seconds", 300)

	viper.SetDefault("resources.max_concurrent_workers", 12)
	viper.SetDefault("resources.max_concurrent_processes", 12)
	viper.SetDefault("resources.memory_warning_threshold_mb", 2048)
	viper.SetDefault("resources.memory_critical_threshold_mb", 4096)
	viper.SetDefault("resources.sample_interval_seconds", 10)
	viper.SetDefault("resources.high_pressure_evictions", 2)

	viper.SetDefault("persistence.data_dir", "")
	viper.SetDefault("persistence.snapshot_interval_seconds", 30)
	viper.SetDefault("persistence.output_tail_lines", 50)

	viper.SetDefault("logging.level", "INFO")
	viper.SetDefault("logging.dir", "")
}

// Load unmarshals the current viper state into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DataDir resolves the persistence root, defaulting to $HOME/.wrangler.
func (c *Config) DataDir() string {
	if c.Persistence.DataDir != "" {
		return c.Persistence.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wrangler"
	}
	return filepath.Join(home, ".wrangler")
}

// ConfigDir returns the default configuration directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "wrangler")
}

// watchMu serializes Watch registrations; viper's OnConfigChange replaces
// the previous callback, so all consumers funnel through one handler.
var (
	watchMu       sync.Mutex
	watchHandlers []func(*Config)
	watching      bool
)

// Watch re-reads and re-validates the configuration whenever the config
// file changes, invoking onChange with the fresh Config. Invalid updates
// are dropped so a bad edit never replaces a good running policy.
func Watch(onChange func(*Config)) {
	watchMu.Lock()
	defer watchMu.Unlock()

	watchHandlers = append(watchHandlers, onChange)
	if watching {
		return
	}
	watching = true

	viper.OnConfigChange(func(in fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			return
		}
		watchMu.Lock()
		handlers := make([]func(*Config), len(watchHandlers))
		copy(handlers, watchHandlers)
		watchMu.Unlock()
		for _, h := range handlers {
			h(cfg)
		}
	})
	viper.WatchConfig()
}
