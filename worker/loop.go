// Package worker provides the ticket execution engine: a Loop that claims
// tickets and runs the job handler through middleware with bounded
// in-process retry, and a Pool that runs independent loops concurrently.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/backoff"
	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/job"
	"github.com/xraph/enrich/middleware"
	"github.com/xraph/enrich/ticket"
)

// Loop is one worker: it claims a ticket, runs its attempts, writes the
// outcome back, and repeats until cancelled.
type Loop struct {
	id       string
	tickets  *ticket.Repository
	entities *entity.Repository
	handler  job.HandlerFunc
	mw       middleware.Middleware
	settings
}

// NewLoop creates a loop that claims tickets under workerID.
func NewLoop(
	workerID string,
	tickets *ticket.Repository,
	entities *entity.Repository,
	handler job.HandlerFunc,
	opts ...Option,
) *Loop {
	s := defaultSettings()
	s.apply(opts)
	return newLoop(workerID, tickets, entities, handler, s)
}

func newLoop(workerID string, tickets *ticket.Repository, entities *entity.Repository, handler job.HandlerFunc, s settings) *Loop {
	return &Loop{
		id:       workerID,
		tickets:  tickets,
		entities: entities,
		handler:  handler,
		mw:       middleware.Chain(s.middleware...),
		settings: s,
	}
}

// ID returns the identity the loop claims tickets under.
func (l *Loop) ID() string { return l.id }

// Run processes tickets until ctx is done. Cancelling ctx never interrupts a
// claimed ticket: its attempts and write-back finish before Run returns.
//
// Handler failures are recorded on the ticket and never returned. Run
// returns nil after cancellation and a non-nil error only when the store
// fails.
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, context.Background())
}

// run is Run with an abort context whose cancellation does interrupt the
// in-flight ticket.
func (l *Loop) run(ctx, abort context.Context) error {
	l.logger.Debug("worker loop started", slog.String("worker_id", l.id))
	defer l.logger.Debug("worker loop stopped", slog.String("worker_id", l.id))

	for {
		if ctx.Err() != nil {
			return nil
		}

		t, err := l.tickets.ClaimNextQueued(ctx, l.id)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %s: %w", l.id, err)
		}
		if t == nil {
			l.sleep(ctx)
			continue
		}

		if err := l.process(ctx, abort, t); err != nil {
			return fmt.Errorf("worker %s: %w", l.id, err)
		}
	}
}

func (l *Loop) sleep(ctx context.Context) {
	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// process runs the attempt sequence for t on a context detached from ctx.
func (l *Loop) process(ctx, abort context.Context, t *ticket.Ticket) error {
	// Write-back runs on detached so a finished result survives an abort.
	detached := enrich.WithTraceID(context.WithoutCancel(ctx), t.TraceID)
	work, cancel := context.WithCancel(detached)
	defer cancel()
	stop := context.AfterFunc(abort, cancel)
	defer stop()

	l.extensions.EmitTicketClaimed(work, t)
	start := time.Now()

	var (
		result  json.RawMessage
		lastErr error
	)
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		a := &middleware.Attempt{
			Ticket:   t,
			Number:   attempt,
			Max:      l.maxAttempts,
			WorkerID: l.id,
		}
		result, lastErr = l.mw(work, a, func(ctx context.Context) (json.RawMessage, error) {
			return l.handler(ctx, t.EntityID)
		})
		if lastErr == nil {
			break
		}

		l.extensions.EmitAttemptFailed(work, t, attempt, lastErr)
		if attempt < l.maxAttempts {
			if err := backoff.Wait(work, l.backoff, attempt); err != nil {
				break
			}
		}
	}

	if lastErr == nil {
		return l.handleSuccess(detached, t, result, time.Since(start))
	}
	if work.Err() != nil {
		l.logger.Warn("ticket abandoned during shutdown, left for reclamation",
			slog.String("worker_id", l.id),
			slog.String("ticket_id", t.ID.String()),
		)
		return nil
	}

	return l.handleFailure(detached, t, lastErr)
}

// handleSuccess stores the result and mirrors completion onto the entity.
func (l *Loop) handleSuccess(ctx context.Context, t *ticket.Ticket, result json.RawMessage, elapsed time.Duration) error {
	done, err := l.tickets.Complete(ctx, t.ID, result)
	if err != nil {
		return l.writeBackError(t, "complete", err)
	}
	if done == nil {
		l.logMissing(t)
		return nil
	}

	if err := l.updateEntity(ctx, t, enrich.StatusCompleted); err != nil {
		return err
	}

	l.extensions.EmitTicketCompleted(ctx, done, elapsed)
	return nil
}

// handleFailure fails the ticket and mirrors the failure onto the entity.
func (l *Loop) handleFailure(ctx context.Context, t *ticket.Ticket, handlerErr error) error {
	failed, err := l.tickets.Fail(ctx, t.ID)
	if err != nil {
		return l.writeBackError(t, "fail", err)
	}
	if failed == nil {
		l.logMissing(t)
		return nil
	}

	if err := l.updateEntity(ctx, t, enrich.StatusFailed); err != nil {
		return err
	}

	l.extensions.EmitTicketFailed(ctx, failed, handlerErr)
	return nil
}

func (l *Loop) updateEntity(ctx context.Context, t *ticket.Ticket, status enrich.Status) error {
	_, err := l.entities.UpdateStatus(ctx, t.EntityID, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, enrich.ErrInvalidTransition):
		l.logger.Warn("entity already terminal, status not mirrored",
			slog.String("worker_id", l.id),
			slog.String("entity_id", t.EntityID.String()),
			slog.String("status", string(status)),
		)
		return nil
	default:
		return fmt.Errorf("update entity %s: %w", t.EntityID, err)
	}
}

// writeBackError turns a rejected transition into a skip and anything else
// into a fatal error. A rejected transition means the ticket was reclaimed
// while this loop held it.
func (l *Loop) writeBackError(t *ticket.Ticket, op string, err error) error {
	if errors.Is(err, enrich.ErrInvalidTransition) {
		l.logger.Warn("ticket changed state during processing, write-back skipped",
			slog.String("worker_id", l.id),
			slog.String("ticket_id", t.ID.String()),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return fmt.Errorf("%s ticket %s: %w", op, t.ID, err)
}

func (l *Loop) logMissing(t *ticket.Ticket) {
	l.logger.Warn("claimed ticket no longer exists",
		slog.String("worker_id", l.id),
		slog.String("ticket_id", t.ID.String()),
	)
}
