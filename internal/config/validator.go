package config

import (
	"github.com/Iron-Ham/wrangler/internal/errors"
)

// Validate checks a Config for values that would misbehave at runtime.
// It returns the first problem found as a *errors.ValidationError.
func Validate(cfg *Config) error {
	if cfg.Cleanup.CompletedTeamDelaySeconds < 0 {
		return errors.NewValidationError("cleanup.completed_team_delay_seconds", "must be >= 0")
	}
	if cfg.Cleanup.FailedTeamDelaySeconds < 0 {
		return errors.NewValidationError("cleanup.failed_team_delay_seconds", "must be >= 0")
	}
	if cfg.Cleanup.IdleAgentTimeoutSeconds <= 0 {
		return errors.NewValidationError("cleanup.idle_agent_timeout_seconds", "must be > 0")
	}
	if cfg.Cleanup.SuspendedIdleTimeoutSeconds <= 0 {
		return errors.NewValidationError("cleanup.suspended_idle_timeout_seconds", "must be > 0")
	}
	if cfg.Cleanup.ProcessHangTimeoutSeconds <= 0 {
		return errors.NewValidationError("cleanup.process_hang_timeout_seconds", "must be > 0")
	}

	if cfg.Pool.MaxPerRole <= 0 {
		return errors.NewValidationError("pool.max_per_role", "must be > 0")
	}
	if cfg.Pool.MaxPoolSize <= 0 {
		return errors.NewValidationError("pool.max_pool_size", "must be > 0")
	}
	if cfg.Pool.MaxPerRole > cfg.Pool.MaxPoolSize {
		return errors.NewValidationError("pool.max_per_role", "cannot exceed pool.max_pool_size")
	}
	if cfg.Pool.TTLSeconds <= 0 {
		return errors.NewValidationError("pool.ttl_seconds", "must be > 0")
	}

	if cfg.Resources.MaxConcurrentWorkers <= 0 {
		return errors.NewValidationError("resources.max_concurrent_workers", "must be > 0")
	}
	if cfg.Resources.MaxConcurrentProcesses <= 0 {
		return errors.NewValidationError("resources.max_concurrent_processes", "must be > 0")
	}
	if cfg.Resources.MemoryWarningThresholdMB <= 0 {
		return errors.NewValidationError("resources.memory_warning_threshold_mb", "must be > 0")
	}
	if cfg.Resources.MemoryCriticalThresholdMB <= cfg.Resources.MemoryWarningThresholdMB {
		return errors.NewValidationError("resources.memory_critical_threshold_mb",
			"must be greater than resources.memory_warning_threshold_mb")
	}
	if cfg.Resources.HighPressureEvictions < 0 {
		return errors.NewValidationError("resources.high_pressure_evictions", "must be >= 0")
	}

	if cfg.Persistence.SnapshotIntervalSeconds <= 0 {
		return errors.NewValidationError("persistence.snapshot_interval_seconds", "must be > 0")
	}
	if cfg.Persistence.OutputTailLines < 0 {
		return errors.NewValidationError("persistence.output_tail_lines", "must be >= 0")
	}

	return nil
}
