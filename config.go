package enrich

import (
	"fmt"
	"time"
)

// Config holds the queue engine and worker knobs.
type Config struct {
	// Concurrency is the number of independent worker loops.
	Concurrency int

	// PollInterval is how long a loop sleeps after finding no work.
	PollInterval time.Duration

	// MaxAttempts is the number of sequential in-process handler attempts
	// made for one claim before the ticket is failed.
	MaxAttempts int

	// RetryBaseDelay scales the pause between attempts (attempt × base).
	RetryBaseDelay time.Duration

	// AttemptTimeout bounds a single handler attempt. Zero means no bound;
	// a hung handler is then recovered only by lease reclamation.
	AttemptTimeout time.Duration

	// LeaseTimeout is how long a claim is trusted before the sweep may
	// reclaim it.
	LeaseTimeout time.Duration

	// MaxRetries is the number of lease reclamations a ticket may undergo
	// before the sweep fails it permanently.
	MaxRetries int

	// ReclaimSchedule is the cron expression the sweep runs on,
	// e.g. "@every 10s".
	ReclaimSchedule string

	// ShutdownTimeout is how long Stop waits for in-flight tickets before
	// cancelling their attempts.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     1,
		PollInterval:    500 * time.Millisecond,
		MaxAttempts:     3,
		RetryBaseDelay:  time.Second,
		LeaseTimeout:    30 * time.Second,
		MaxRetries:      3,
		ReclaimSchedule: "@every 10s",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("enrich: concurrency must be greater than 0, got %d", c.Concurrency)
	case c.PollInterval <= 0:
		return fmt.Errorf("enrich: poll interval must be greater than 0, got %s", c.PollInterval)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("enrich: max attempts must be greater than 0, got %d", c.MaxAttempts)
	case c.RetryBaseDelay < 0:
		return fmt.Errorf("enrich: retry base delay must not be negative, got %s", c.RetryBaseDelay)
	case c.AttemptTimeout < 0:
		return fmt.Errorf("enrich: attempt timeout must not be negative, got %s", c.AttemptTimeout)
	case c.LeaseTimeout <= 0:
		return fmt.Errorf("enrich: lease timeout must be greater than 0, got %s", c.LeaseTimeout)
	case c.MaxRetries < 0:
		return fmt.Errorf("enrich: max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
