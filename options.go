package enrich

import (
	"context"
	"log/slog"
)

// Option configures an Enricher.
type Option func(*Enricher) error

// Storer is the minimal store interface held by the Enricher. It covers
// lifecycle only; the engine type-asserts the transactional kv.Store
// contract when wiring subsystems.
type Storer interface {
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Enricher is the central coordinator: it holds the configuration, the
// logger, the store, and, once the engine has wired them, the worker pool
// and the extension registry.
//
// Create one with New() and functional options, then pass it to
// engine.Build.
type Enricher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Enricher with the given options.
func New(opts ...Option) (*Enricher, error) {
	e := &Enricher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Logger returns the enricher's logger.
func (e *Enricher) Logger() *slog.Logger { return e.logger }

// Store returns the enricher's store.
func (e *Enricher) Store() Storer { return e.store }

// Config returns a copy of the enricher's configuration.
func (e *Enricher) Config() Config { return e.config }

// SetPool sets the worker pool (called by the engine).
func (e *Enricher) SetPool(p poolRunner) { e.pool = p }

// SetExtensions sets the extension emitter (called by the engine).
func (e *Enricher) SetExtensions(x extensionEmitter) { e.extensions = x }

// Start begins ticket processing. It returns ErrNotBuilt when no worker
// pool has been wired.
func (e *Enricher) Start(ctx context.Context) error {
	if e.pool == nil {
		return ErrNotBuilt
	}
	if err := e.pool.Start(ctx); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Stop waits for in-flight tickets, notifies extensions, and closes the
// store. It is safe to call when Start was never called.
func (e *Enricher) Stop(ctx context.Context) error {
	if e.pool != nil && e.started {
		if err := e.pool.Stop(ctx); err != nil {
			e.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		e.started = false
	}
	if e.extensions != nil {
		e.extensions.EmitShutdown(ctx)
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(e *Enricher) error {
		e.config = c
		return nil
	}
}

// WithConcurrency sets the number of worker loops.
func WithConcurrency(n int) Option {
	return func(e *Enricher) error {
		e.config.Concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) error {
		e.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The engine requires it to
// implement kv.Store.
func WithStore(s Storer) Option {
	return func(e *Enricher) error {
		if s == nil {
			return ErrNoStore
		}
		e.store = s
		return nil
	}
}
