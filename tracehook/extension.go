package tracehook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/ticket"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.TicketCreated   = (*Extension)(nil)
	_ ext.TicketClaimed   = (*Extension)(nil)
	_ ext.AttemptFailed   = (*Extension)(nil)
	_ ext.TicketCompleted = (*Extension)(nil)
	_ ext.TicketFailed    = (*Extension)(nil)
	_ ext.TicketRequeued  = (*Extension)(nil)
	_ ext.TicketExhausted = (*Extension)(nil)
)

// Recorder receives trace steps.
type Recorder interface {
	Record(ctx context.Context, step *Step) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, step *Step) error

// Record calls f(ctx, step).
func (f RecorderFunc) Record(ctx context.Context, step *Step) error {
	return f(ctx, step)
}

// Step is one point in a traced ticket's life.
type Step struct {
	TraceID  string         `json:"trace_id"`
	Name     string         `json:"step"`
	TicketID string         `json:"ticket_id"`
	EntityID string         `json:"entity_id"`
	At       time.Time      `json:"at"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Extension turns ticket lifecycle events into trace steps.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that records through r. A nil r records to the
// extension's logger.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recorder == nil {
		e.recorder = LogRecorder(e.logger)
	}
	return e
}

// LogRecorder returns a Recorder that writes each step as an Info-level
// "trace" line.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, s *Step) error {
		attrs := []slog.Attr{
			slog.String("trace_id", s.TraceID),
			slog.String("step", s.Name),
			slog.String("ticket_id", s.TicketID),
			slog.String("entity_id", s.EntityID),
		}
		for k, v := range s.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		if s.Error != "" {
			attrs = append(attrs, slog.String("error", s.Error))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "trace", attrs...)
		return nil
	})
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "trace-hook" }

// ── Submission ──────────────────────────────────────

// OnTicketCreated implements ext.TicketCreated.
func (e *Extension) OnTicketCreated(ctx context.Context, t *ticket.Ticket, name string) error {
	return e.record(ctx, StepSubmitted, t, nil, "name", name)
}

// ── Worker ──────────────────────────────────────────

// OnTicketClaimed implements ext.TicketClaimed. A claim records both the
// claim and the start of processing.
func (e *Extension) OnTicketClaimed(ctx context.Context, t *ticket.Ticket) error {
	if err := e.record(ctx, StepWorkerClaimed, t, nil,
		"worker_id", t.WorkerID,
		"retry_count", t.RetryCount,
	); err != nil {
		return err
	}
	return e.record(ctx, StepWorkerProcessing, t, nil, "worker_id", t.WorkerID)
}

// OnAttemptFailed implements ext.AttemptFailed.
func (e *Extension) OnAttemptFailed(ctx context.Context, t *ticket.Ticket, attempt int, attemptErr error) error {
	return e.record(ctx, StepWorkerAttemptFailed, t, attemptErr,
		"worker_id", t.WorkerID,
		"attempt", attempt,
	)
}

// OnTicketCompleted implements ext.TicketCompleted.
func (e *Extension) OnTicketCompleted(ctx context.Context, t *ticket.Ticket, elapsed time.Duration) error {
	return e.record(ctx, StepWorkerCompleted, t, nil,
		"worker_id", t.WorkerID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnTicketFailed implements ext.TicketFailed.
func (e *Extension) OnTicketFailed(ctx context.Context, t *ticket.Ticket, ticketErr error) error {
	return e.record(ctx, StepWorkerFailed, t, ticketErr, "worker_id", t.WorkerID)
}

// ── Reclamation ─────────────────────────────────────

// OnTicketRequeued implements ext.TicketRequeued.
func (e *Extension) OnTicketRequeued(ctx context.Context, t *ticket.Ticket) error {
	return e.record(ctx, StepReclaimRequeued, t, nil, "retry_count", t.RetryCount)
}

// OnTicketExhausted implements ext.TicketExhausted.
func (e *Extension) OnTicketExhausted(ctx context.Context, t *ticket.Ticket) error {
	return e.record(ctx, StepReclaimExhausted, t, nil, "retry_count", t.RetryCount)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends a step if the ticket is traced and the step is
// enabled. kvPairs are added to Metadata.
func (e *Extension) record(ctx context.Context, name string, t *ticket.Ticket, err error, kvPairs ...any) error {
	if t == nil || t.TraceID == "" {
		return nil
	}
	if e.enabled != nil && !e.enabled[name] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	s := &Step{
		TraceID:  t.TraceID,
		Name:     name,
		TicketID: t.ID.String(),
		EntityID: t.EntityID.String(),
		At:       e.now(),
		Metadata: meta,
	}
	if err != nil {
		s.Error = err.Error()
	}

	if recErr := e.recorder.Record(ctx, s); recErr != nil {
		e.logger.Warn("tracehook: failed to record step",
			slog.String("step", name),
			slog.String("trace_id", t.TraceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
