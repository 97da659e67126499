package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/ticket"
)

// Reconciler repairs entity status drift after a sweep.
// service.Service satisfies this interface.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Result summarises one sweep.
type Result struct {
	Requeued  int `json:"requeued"`
	Exhausted int `json:"exhausted"`
	Repaired  int `json:"repaired"`
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithSchedule sets the cron expression runs are scheduled on.
func WithSchedule(expr string) Option {
	return func(s *Sweeper) { s.schedule = expr }
}

// WithLease sets the lease timeout and the reclamation budget passed to
// each sweep.
func WithLease(leaseTimeout time.Duration, maxRetries int) Option {
	return func(s *Sweeper) {
		s.leaseTimeout = leaseTimeout
		s.maxRetries = maxRetries
	}
}

// WithReconciler sets the repair step run after each sweep.
func WithReconciler(r Reconciler) Option {
	return func(s *Sweeper) { s.reconciler = r }
}

// WithExtensions sets the registry notified of requeued and exhausted
// tickets.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Sweeper) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Sweeper runs lease reclamation on a schedule.
type Sweeper struct {
	tickets    *ticket.Repository
	reconciler Reconciler
	extensions *ext.Registry
	logger     *slog.Logger

	schedule     string
	leaseTimeout time.Duration
	maxRetries   int

	mu   sync.Mutex
	cron *cronlib.Cron
}

// New creates a Sweeper over tickets.
func New(tickets *ticket.Repository, opts ...Option) *Sweeper {
	s := &Sweeper{
		tickets:      tickets,
		schedule:     "@every 10s",
		leaseTimeout: 30 * time.Second,
		maxRetries:   3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	return s
}

// Start schedules runs and returns immediately. Calling Start on a running
// Sweeper is a no-op.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	sched, err := ParseSchedule(s.schedule)
	if err != nil {
		return fmt.Errorf("sweep: parse schedule %q: %w", s.schedule, err)
	}

	logger := cronLogger{s.logger}
	c := cronlib.New(
		cronlib.WithLogger(logger),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cronlib.FuncJob(func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("scheduled sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	s.cron = c

	s.logger.Info("sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("lease_timeout", s.leaseTimeout),
		slog.Int("max_retries", s.maxRetries),
	)
	return nil
}

// Stop cancels future runs and waits for a run in progress, or until ctx is
// done.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps immediately, then reconciles when a Reconciler is set.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	res, err := s.tickets.Sweep(ctx, s.leaseTimeout, s.maxRetries)
	if err != nil {
		return nil, err
	}

	for _, t := range res.Requeued {
		s.extensions.EmitTicketRequeued(ctx, t)
	}
	for _, t := range res.Exhausted {
		s.extensions.EmitTicketExhausted(ctx, t)
	}

	out := &Result{
		Requeued:  len(res.Requeued),
		Exhausted: len(res.Exhausted),
	}

	if s.reconciler != nil {
		repaired, err := s.reconciler.Reconcile(ctx)
		if err != nil {
			return out, fmt.Errorf("sweep: reconcile: %w", err)
		}
		out.Repaired = repaired
	}

	if out.Requeued > 0 || out.Exhausted > 0 || out.Repaired > 0 {
		s.logger.Info("sweep reclaimed tickets",
			slog.Int("requeued", out.Requeued),
			slog.Int("exhausted", out.Exhausted),
			slog.Int("repaired", out.Repaired),
		)
	}
	return out, nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
