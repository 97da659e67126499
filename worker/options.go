package worker

import (
	"log/slog"
	"time"

	"github.com/xraph/enrich/backoff"
	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/middleware"
)

// settings are shared by a Pool and every Loop it runs.
type settings struct {
	concurrency  int
	maxAttempts  int
	pollInterval time.Duration
	backoff      backoff.Strategy
	middleware   []middleware.Middleware
	extensions   *ext.Registry
	logger       *slog.Logger
}

func defaultSettings() settings {
	return settings{
		concurrency:  1,
		maxAttempts:  3,
		pollInterval: 500 * time.Millisecond,
		backoff:      backoff.NewLinear(time.Second, 0),
	}
}

// Option configures a Loop or a Pool.
type Option func(*settings)

// WithConcurrency sets the number of loops a Pool runs. Loops ignore it.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

// WithMaxAttempts sets the number of sequential handler attempts made for
// one claim.
func WithMaxAttempts(n int) Option {
	return func(s *settings) { s.maxAttempts = n }
}

// WithPollInterval sets how long a loop sleeps after finding no work.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) { s.pollInterval = d }
}

// WithBackoff sets the pause strategy between attempts.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *settings) { s.backoff = b }
}

// WithMiddleware appends middleware wrapped around every attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *settings) { s.middleware = append(s.middleware, mws...) }
}

// WithExtensions sets the registry notified of ticket lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(s *settings) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func (s *settings) apply(opts []Option) {
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
}
