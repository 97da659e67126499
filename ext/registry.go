package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/enrich/ticket"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type ticketCreatedEntry struct {
	name string
	hook TicketCreated
}

type ticketClaimedEntry struct {
	name string
	hook TicketClaimed
}

type attemptFailedEntry struct {
	name string
	hook AttemptFailed
}

type ticketCompletedEntry struct {
	name string
	hook TicketCompleted
}

type ticketFailedEntry struct {
	name string
	hook TicketFailed
}

type ticketRequeuedEntry struct {
	name string
	hook TicketRequeued
}

type ticketExhaustedEntry struct {
	name string
	hook TicketExhausted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Hooks are type-cached at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the worker pool starts; the registry is
// read concurrently afterwards and Register is not synchronized.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	ticketCreated   []ticketCreatedEntry
	ticketClaimed   []ticketClaimedEntry
	attemptFailed   []attemptFailedEntry
	ticketCompleted []ticketCompletedEntry
	ticketFailed    []ticketFailedEntry
	ticketRequeued  []ticketRequeuedEntry
	ticketExhausted []ticketExhaustedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TicketCreated); ok {
		r.ticketCreated = append(r.ticketCreated, ticketCreatedEntry{name, h})
	}
	if h, ok := e.(TicketClaimed); ok {
		r.ticketClaimed = append(r.ticketClaimed, ticketClaimedEntry{name, h})
	}
	if h, ok := e.(AttemptFailed); ok {
		r.attemptFailed = append(r.attemptFailed, attemptFailedEntry{name, h})
	}
	if h, ok := e.(TicketCompleted); ok {
		r.ticketCompleted = append(r.ticketCompleted, ticketCompletedEntry{name, h})
	}
	if h, ok := e.(TicketFailed); ok {
		r.ticketFailed = append(r.ticketFailed, ticketFailedEntry{name, h})
	}
	if h, ok := e.(TicketRequeued); ok {
		r.ticketRequeued = append(r.ticketRequeued, ticketRequeuedEntry{name, h})
	}
	if h, ok := e.(TicketExhausted); ok {
		r.ticketExhausted = append(r.ticketExhausted, ticketExhaustedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitTicketCreated notifies all extensions that implement TicketCreated.
func (r *Registry) EmitTicketCreated(ctx context.Context, t *ticket.Ticket, name string) {
	for _, e := range r.ticketCreated {
		if err := e.hook.OnTicketCreated(ctx, t, name); err != nil {
			r.logHookError("OnTicketCreated", e.name, err)
		}
	}
}

// EmitTicketClaimed notifies all extensions that implement TicketClaimed.
func (r *Registry) EmitTicketClaimed(ctx context.Context, t *ticket.Ticket) {
	for _, e := range r.ticketClaimed {
		if err := e.hook.OnTicketClaimed(ctx, t); err != nil {
			r.logHookError("OnTicketClaimed", e.name, err)
		}
	}
}

// EmitAttemptFailed notifies all extensions that implement AttemptFailed.
func (r *Registry) EmitAttemptFailed(ctx context.Context, t *ticket.Ticket, attempt int, attemptErr error) {
	for _, e := range r.attemptFailed {
		if err := e.hook.OnAttemptFailed(ctx, t, attempt, attemptErr); err != nil {
			r.logHookError("OnAttemptFailed", e.name, err)
		}
	}
}

// EmitTicketCompleted notifies all extensions that implement TicketCompleted.
func (r *Registry) EmitTicketCompleted(ctx context.Context, t *ticket.Ticket, elapsed time.Duration) {
	for _, e := range r.ticketCompleted {
		if err := e.hook.OnTicketCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnTicketCompleted", e.name, err)
		}
	}
}

// EmitTicketFailed notifies all extensions that implement TicketFailed.
func (r *Registry) EmitTicketFailed(ctx context.Context, t *ticket.Ticket, jobErr error) {
	for _, e := range r.ticketFailed {
		if err := e.hook.OnTicketFailed(ctx, t, jobErr); err != nil {
			r.logHookError("OnTicketFailed", e.name, err)
		}
	}
}

// EmitTicketRequeued notifies all extensions that implement TicketRequeued.
func (r *Registry) EmitTicketRequeued(ctx context.Context, t *ticket.Ticket) {
	for _, e := range r.ticketRequeued {
		if err := e.hook.OnTicketRequeued(ctx, t); err != nil {
			r.logHookError("OnTicketRequeued", e.name, err)
		}
	}
}

// EmitTicketExhausted notifies all extensions that implement TicketExhausted.
func (r *Registry) EmitTicketExhausted(ctx context.Context, t *ticket.Ticket) {
	for _, e := range r.ticketExhausted {
		if err := e.hook.OnTicketExhausted(ctx, t); err != nil {
			r.logHookError("OnTicketExhausted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
