package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/ticket"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.TicketCreated   = (*MetricsExtension)(nil)
	_ ext.TicketClaimed   = (*MetricsExtension)(nil)
	_ ext.AttemptFailed   = (*MetricsExtension)(nil)
	_ ext.TicketCompleted = (*MetricsExtension)(nil)
	_ ext.TicketFailed    = (*MetricsExtension)(nil)
	_ ext.TicketRequeued  = (*MetricsExtension)(nil)
	_ ext.TicketExhausted = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope of the lifecycle counters.
const meterName = "github.com/xraph/enrich/observability"

// MetricsExtension records system-wide lifecycle counters through an
// OpenTelemetry meter. Register it as an extension to track submission
// rate, claims, outcomes, and reclamation activity.
type MetricsExtension struct {
	TicketCreated   metric.Int64Counter
	TicketClaimed   metric.Int64Counter
	AttemptFailed   metric.Int64Counter
	TicketCompleted metric.Int64Counter
	TicketFailed    metric.Int64Counter
	TicketRequeued  metric.Int64Counter
	TicketExhausted metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop counters.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{ticket}"))
		return c
	}
	return &MetricsExtension{
		TicketCreated:   counter("enrich.ticket.created", "Tickets created by submissions"),
		TicketClaimed:   counter("enrich.ticket.claimed", "Tickets claimed by worker loops"),
		AttemptFailed:   counter("enrich.attempt.failed", "Failed handler attempts"),
		TicketCompleted: counter("enrich.ticket.completed", "Tickets completed"),
		TicketFailed:    counter("enrich.ticket.failed", "Tickets failed after in-process attempts"),
		TicketRequeued:  counter("enrich.ticket.requeued", "Tickets requeued after lease expiry"),
		TicketExhausted: counter("enrich.ticket.exhausted", "Tickets failed after spending their retry budget"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Submission hooks ────────────────────────────────

// OnTicketCreated implements ext.TicketCreated.
func (m *MetricsExtension) OnTicketCreated(ctx context.Context, _ *ticket.Ticket, _ string) error {
	m.TicketCreated.Add(ctx, 1)
	return nil
}

// ── Worker hooks ────────────────────────────────────

// OnTicketClaimed implements ext.TicketClaimed.
func (m *MetricsExtension) OnTicketClaimed(ctx context.Context, _ *ticket.Ticket) error {
	m.TicketClaimed.Add(ctx, 1)
	return nil
}

// OnAttemptFailed implements ext.AttemptFailed.
func (m *MetricsExtension) OnAttemptFailed(ctx context.Context, _ *ticket.Ticket, _ int, _ error) error {
	m.AttemptFailed.Add(ctx, 1)
	return nil
}

// OnTicketCompleted implements ext.TicketCompleted.
func (m *MetricsExtension) OnTicketCompleted(ctx context.Context, _ *ticket.Ticket, _ time.Duration) error {
	m.TicketCompleted.Add(ctx, 1)
	return nil
}

// OnTicketFailed implements ext.TicketFailed.
func (m *MetricsExtension) OnTicketFailed(ctx context.Context, _ *ticket.Ticket, _ error) error {
	m.TicketFailed.Add(ctx, 1)
	return nil
}

// ── Reclamation hooks ───────────────────────────────

// OnTicketRequeued implements ext.TicketRequeued.
func (m *MetricsExtension) OnTicketRequeued(ctx context.Context, _ *ticket.Ticket) error {
	m.TicketRequeued.Add(ctx, 1)
	return nil
}

// OnTicketExhausted implements ext.TicketExhausted.
func (m *MetricsExtension) OnTicketExhausted(ctx context.Context, _ *ticket.Ticket) error {
	m.TicketExhausted.Add(ctx, 1)
	return nil
}
