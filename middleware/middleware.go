package middleware

import (
	"context"
	"encoding/json"

	"github.com/xraph/enrich/ticket"
)

// Attempt describes one handler invocation on a claimed ticket.
type Attempt struct {
	// Ticket is the claimed ticket as returned by the claim.
	Ticket *ticket.Ticket
	// Number is the 1-indexed attempt within this claim.
	Number int
	// Max is the attempt budget for this claim.
	Max int
	// WorkerID names the loop making the attempt.
	WorkerID string
}

// Last reports whether no attempt follows this one if it fails.
func (a *Attempt) Last() bool { return a.Number >= a.Max }

// Handler is the terminal function that runs the job.
type Handler func(ctx context.Context) (json.RawMessage, error)

// Middleware wraps a Handler with cross-cutting logic.
type Middleware func(ctx context.Context, a *Attempt, next Handler) (json.RawMessage, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (json.RawMessage, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (json.RawMessage, error) {
				return mw(ctx, a, prev)
			}
		}
		return h(ctx)
	}
}
