package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as a string such as "1.5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// StorageConfig selects where tasks are persisted.
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "json" or "sqlite"
	Path    string `json:"path" yaml:"path"`       // File path (":memory:" for a throwaway SQLite database)
}

// LifecycleConfig tunes the lifecycle controller.
type LifecycleConfig struct {
	DefaultUser string `json:"default_user" yaml:"default_user"`
	StrictStart bool   `json:"strict_start" yaml:"strict_start"` // Reject start while dependencies are unfinished
}

// SchedulerConfig tunes task selection.
type SchedulerConfig struct {
	QueueLimit        int     `json:"queue_limit" yaml:"queue_limit"`
	DefaultComplexity float64 `json:"default_complexity" yaml:"default_complexity"`
}

// RetryConfig mirrors backoff.ExponentialBackOff.
type RetryConfig struct {
	InitialInterval     Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval         Duration `json:"max_interval" yaml:"max_interval"`
	MaxElapsedTime      Duration `json:"max_elapsed_time" yaml:"max_elapsed_time"`
	Multiplier          float64  `json:"multiplier" yaml:"multiplier"`
	RandomizationFactor float64  `json:"randomization_factor" yaml:"randomization_factor"`
}

// BreakerConfig controls the per-command circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32   `json:"max_failures" yaml:"max_failures"` // Consecutive failures before opening
	Timeout     Duration `json:"timeout" yaml:"timeout"`           // Open -> half-open delay
}

// RunnerConfig controls automated execution of eligible tasks.
type RunnerConfig struct {
	Concurrency int           `json:"concurrency" yaml:"concurrency"`
	Command     string        `json:"command,omitempty" yaml:"command,omitempty"` // Shell command run for tasks without their own
	TaskTimeout Duration      `json:"task_timeout,omitempty" yaml:"task_timeout,omitempty"`
	Retry       RetryConfig   `json:"retry" yaml:"retry"`
	Breaker     BreakerConfig `json:"breaker" yaml:"breaker"`
}

// Config is the top-level configuration.
type Config struct {
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Runner    RunnerConfig    `json:"runner" yaml:"runner"`
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be \"json\" or \"sqlite\", got %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Scheduler.QueueLimit < 1 {
		return fmt.Errorf("scheduler.queue_limit must be positive, got %d", c.Scheduler.QueueLimit)
	}
	if c.Scheduler.DefaultComplexity < 0 {
		return fmt.Errorf("scheduler.default_complexity must not be negative")
	}
	if c.Runner.Concurrency < 1 {
		return fmt.Errorf("runner.concurrency must be positive, got %d", c.Runner.Concurrency)
	}
	if c.Runner.Retry.Multiplier < 1 {
		return fmt.Errorf("runner.retry.multiplier must be at least 1, got %g", c.Runner.Retry.Multiplier)
	}
	return nil
}
