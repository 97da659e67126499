// Package ext defines the extension system for enrich.
// Extensions are notified of ticket lifecycle events (created, claimed,
// completed, failed, reclaimed) and can react to them: metrics, trace
// logs, webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/enrich/ticket"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Submission hooks
// ──────────────────────────────────────────────────

// TicketCreated is called after a submission created an entity and its
// ticket.
type TicketCreated interface {
	OnTicketCreated(ctx context.Context, t *ticket.Ticket, name string) error
}

// ──────────────────────────────────────────────────
// Worker hooks
// ──────────────────────────────────────────────────

// TicketClaimed is called when a worker loop claims a ticket.
type TicketClaimed interface {
	OnTicketClaimed(ctx context.Context, t *ticket.Ticket) error
}

// AttemptFailed is called after each failed handler attempt, including the
// last one.
type AttemptFailed interface {
	OnAttemptFailed(ctx context.Context, t *ticket.Ticket, attempt int, err error) error
}

// TicketCompleted is called after a ticket's result is stored.
type TicketCompleted interface {
	OnTicketCompleted(ctx context.Context, t *ticket.Ticket, elapsed time.Duration) error
}

// TicketFailed is called when a worker exhausts its attempts and fails the
// ticket.
type TicketFailed interface {
	OnTicketFailed(ctx context.Context, t *ticket.Ticket, err error) error
}

// ──────────────────────────────────────────────────
// Reclamation hooks
// ──────────────────────────────────────────────────

// TicketRequeued is called when a sweep puts a ticket with an expired lease
// back on the queue.
type TicketRequeued interface {
	OnTicketRequeued(ctx context.Context, t *ticket.Ticket) error
}

// TicketExhausted is called when a sweep fails a ticket whose retry budget
// is spent.
type TicketExhausted interface {
	OnTicketExhausted(ctx context.Context, t *ticket.Ticket) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
