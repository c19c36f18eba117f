package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/tascade/internal/config"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval
	MaxInterval         time.Duration // Maximum retry interval
	MaxElapsedTime      time.Duration // Maximum total retry time; 0 retries until the context ends
	Multiplier          float64       // Backoff multiplier
	RandomizationFactor float64       // Jitter factor
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfigFrom(config.DefaultConfig().Runner.Retry)
}

// RetryConfigFrom converts the file configuration.
func RetryConfigFrom(c config.RetryConfig) RetryConfig {
	return RetryConfig{
		InitialInterval:     c.InitialInterval.Std(),
		MaxInterval:         c.MaxInterval.Std(),
		MaxElapsedTime:      c.MaxElapsedTime.Std(),
		Multiplier:          c.Multiplier,
		RandomizationFactor: c.RandomizationFactor,
	}
}

// BreakerConfig configures the breakers handed out by a BreakerRegistry.
type BreakerConfig struct {
	MaxFailures uint32        // Consecutive failures that open the breaker
	Timeout     time.Duration // Open state duration before a trial run
}

// BreakerRegistry manages one circuit breaker per handler key.
type BreakerRegistry struct {
	mu       sync.Mutex
	config   BreakerConfig
	logger   *log.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry(cfg BreakerConfig, logger *log.Logger) *BreakerRegistry {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BreakerRegistry{
		config:   cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	maxFailures := r.config.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1, // One trial run in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not the command's fault.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[key] = cb
	return cb
}

// runWithRetry calls fn through cb with exponential backoff. It returns the
// last output, the final error and how many attempts were made.
func runWithRetry(ctx context.Context, fn func(context.Context) (string, error), cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (string, int, error) {
	var output string
	var lastErr error
	attempts := 0

	operation := func() error {
		// Fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			attempts++
			out, err := fn(ctx)
			lastErr = err
			return out, err
		})
		if s, ok := result.(string); ok {
			output = s
		}

		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				if lastErr != nil {
					err = fmt.Errorf("%w; last failure: %v", err, lastErr)
				}
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrNoCommand) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return output, attempts, err
}
