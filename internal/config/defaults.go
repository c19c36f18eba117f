package config

import (
	"path/filepath"
	"time"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "json",
			Path:    filepath.Join(".tascade", "tasks.json"),
		},
		Lifecycle: LifecycleConfig{
			DefaultUser: "system",
		},
		Scheduler: SchedulerConfig{
			QueueLimit:        5,
			DefaultComplexity: 5,
		},
		Runner: RunnerConfig{
			Concurrency: 4,
			Retry: RetryConfig{
				InitialInterval:     Duration(1 * time.Second),
				MaxInterval:         Duration(30 * time.Second),
				MaxElapsedTime:      Duration(2 * time.Minute),
				Multiplier:          2.0,
				RandomizationFactor: 0.1,
			},
			Breaker: BreakerConfig{
				MaxFailures: 3,
				Timeout:     Duration(30 * time.Second),
			},
		},
	}
}
