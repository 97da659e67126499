package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/backoff"
	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/job"
	"github.com/xraph/enrich/kv"
	mw "github.com/xraph/enrich/middleware"
	"github.com/xraph/enrich/observability"
	"github.com/xraph/enrich/service"
	"github.com/xraph/enrich/sweep"
	"github.com/xraph/enrich/ticket"
	"github.com/xraph/enrich/tracehook"
	"github.com/xraph/enrich/worker"
)

// instrumentationName is the OTel scope used for tracer and meter lookups.
const instrumentationName = "github.com/xraph/enrich"

// Engine wraps an Enricher with typed subsystem access.
// Use Build() to create one from an Enricher.
type Engine struct {
	e          *enrich.Enricher
	store      kv.Store
	extensions *ext.Registry
	entities   *entity.Repository
	tickets    *ticket.Repository
	service    *service.Service
	pool       *worker.Pool
	sweeper    *sweep.Sweeper
	bo         backoff.Strategy
	mws        []mw.Middleware
	userExts   []ext.Extension
	logger     *slog.Logger

	traceRecorder tracehook.Recorder

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine. Extensions are
// notified after the built-in metrics and trace extensions, in the order
// given.
func WithExtension(x ext.Extension) Option {
	return func(eng *Engine) {
		eng.userExts = append(eng.userExts, x)
	}
}

// WithMiddleware adds middleware to the attempt chain, inside the default
// stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the pause strategy between in-process attempts.
// If not set, a linear strategy scaled by Config.RetryBaseDelay is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTraceRecorder sets where correlation trace steps are recorded.
// If not set, steps are written to the enricher's logger.
func WithTraceRecorder(r tracehook.Recorder) Option {
	return func(eng *Engine) {
		eng.traceRecorder = r
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Enricher. The Enricher's store
// must implement kv.Store.
func Build(e *enrich.Enricher, handler job.HandlerFunc, opts ...Option) (*Engine, error) {
	logger := e.Logger()
	config := e.Config()

	if e.Store() == nil {
		return nil, enrich.ErrNoStore
	}
	store, ok := e.Store().(kv.Store)
	if !ok {
		return nil, fmt.Errorf("enrich: store does not implement kv.Store")
	}
	if handler == nil {
		return nil, enrich.ErrNoHandler
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		e:          e,
		store:      store,
		extensions: ext.NewRegistry(logger),
		entities:   entity.NewRepository(store),
		tickets:    ticket.NewRepository(store),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Register the built-in extensions, then the caller's.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	eng.extensions.Register(tracehook.New(eng.traceRecorder, tracehook.WithLogger(logger)))
	for _, x := range eng.userExts {
		eng.extensions.Register(x)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewLinear(config.RetryBaseDelay, 0)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → user → timeout.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws = append(allMws, eng.mws...)
	allMws = append(allMws, mw.Timeout(config.AttemptTimeout))

	eng.service = service.New(store, eng.entities, eng.tickets,
		service.WithExtensions(eng.extensions),
		service.WithLogger(logger),
	)

	eng.pool = worker.NewPool(eng.tickets, eng.entities, handler,
		worker.WithConcurrency(config.Concurrency),
		worker.WithMaxAttempts(config.MaxAttempts),
		worker.WithPollInterval(config.PollInterval),
		worker.WithBackoff(eng.bo),
		worker.WithMiddleware(allMws...),
		worker.WithExtensions(eng.extensions),
		worker.WithLogger(logger),
	)

	eng.sweeper = sweep.New(eng.tickets,
		sweep.WithSchedule(config.ReclaimSchedule),
		sweep.WithLease(config.LeaseTimeout, config.MaxRetries),
		sweep.WithReconciler(eng.service),
		sweep.WithExtensions(eng.extensions),
		sweep.WithLogger(logger),
	)

	// Wire back into the Enricher.
	e.SetPool(eng.pool)
	e.SetExtensions(eng.extensions)

	return eng, nil
}

// Start begins ticket processing by starting the sweeper and the worker
// pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	return eng.e.Start(ctx)
}

// Stop stops the sweeper, waits for in-flight tickets, and closes the
// store. It is safe to call without Start.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.sweeper.Stop(ctx); err != nil {
		eng.logger.Error("sweeper stop error", slog.String("error", err.Error()))
	}
	return eng.e.Stop(ctx)
}

// Wait blocks until the worker pool stops and returns the storage error
// that stopped it, if any.
func (eng *Engine) Wait() error { return eng.pool.Wait() }

// Enricher returns the underlying Enricher.
func (eng *Engine) Enricher() *enrich.Enricher { return eng.e }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Entities returns the entity repository.
func (eng *Engine) Entities() *entity.Repository { return eng.entities }

// Tickets returns the ticket repository.
func (eng *Engine) Tickets() *ticket.Repository { return eng.tickets }

// Service returns the submission and query service.
func (eng *Engine) Service() *service.Service { return eng.service }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Sweeper returns the reclamation sweeper.
func (eng *Engine) Sweeper() *sweep.Sweeper { return eng.sweeper }
