package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/kv"
)

var (
	records  = kv.NewTable[Ticket]("tickets")
	byEntity = kv.NewTable[id.ID]("ticket-entity-index")
	queue    = kv.NewTable[bool]("ticket-queue-index")
)

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces the time source used for claim, completion, and lease
// arithmetic.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Repository is the queue engine over a kv.Store.
type Repository struct {
	store kv.Store
	now   func() time.Time
}

// NewRepository returns a repository over store.
func NewRepository(store kv.Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

// Create writes t, its entity index entry, and its queue index entry in one
// transaction.
func (r *Repository) Create(ctx context.Context, t *Ticket) error {
	return r.store.Update(ctx, func(tx kv.Tx) error {
		return r.Insert(tx, t)
	})
}

// Insert is Create inside an existing write transaction. The ticket must be
// queued with no retries, and its entity must not already have a ticket.
func (r *Repository) Insert(tx kv.Tx, t *Ticket) error {
	switch {
	case t == nil, t.ID.IsNil():
		return fmt.Errorf("%w: missing id", enrich.ErrInvalidTicket)
	case t.EntityID.IsNil():
		return fmt.Errorf("%w: missing entity id", enrich.ErrInvalidTicket)
	case t.Status != enrich.StatusQueued:
		return fmt.Errorf("%w: new ticket must be queued, got %s", enrich.ErrInvalidTicket, t.Status)
	case t.RetryCount != 0:
		return fmt.Errorf("%w: new ticket has retry count %d", enrich.ErrInvalidTicket, t.RetryCount)
	}

	existing, err := byEntity.Get(tx, t.EntityID.Key())
	if err != nil {
		return err
	}
	if existing != nil && existing.String() != t.ID.String() {
		return fmt.Errorf("%w: entity %s already has ticket %s", enrich.ErrInvalidTicket, t.EntityID, existing)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	if err := records.Put(tx, t.ID.Key(), t); err != nil {
		return err
	}
	if err := byEntity.Put(tx, t.EntityID.Key(), &t.ID); err != nil {
		return err
	}
	return putQueued(tx, t.ID)
}

func putQueued(tx kv.Tx, ticketID id.TicketID) error {
	v := true
	return queue.Put(tx, ticketID.Key(), &v)
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// FindByID returns the ticket, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, ticketID id.TicketID) (*Ticket, error) {
	var out *Ticket
	err := r.store.View(ctx, func(tx kv.Tx) error {
		var err error
		out, err = findByID(tx, ticketID)
		return err
	})
	return out, err
}

func findByID(tx kv.Tx, ticketID id.TicketID) (*Ticket, error) {
	t, err := records.Get(tx, ticketID.Key())
	if err != nil || t == nil {
		return nil, err
	}
	return t.normalize(), nil
}

// FindByEntityID returns the entity's ticket, or nil when it has none.
func (r *Repository) FindByEntityID(ctx context.Context, entityID id.EntityID) (*Ticket, error) {
	var out *Ticket
	err := r.store.View(ctx, func(tx kv.Tx) error {
		var err error
		out, err = r.FindByEntityIDTx(tx, entityID)
		return err
	})
	return out, err
}

// FindByEntityIDTx is FindByEntityID inside an existing transaction.
func (r *Repository) FindByEntityIDTx(tx kv.Tx, entityID id.EntityID) (*Ticket, error) {
	ticketID, err := byEntity.Get(tx, entityID.Key())
	if err != nil || ticketID == nil {
		return nil, err
	}
	return findByID(tx, *ticketID)
}

// FindAll returns every ticket in id order.
func (r *Repository) FindAll(ctx context.Context) ([]*Ticket, error) {
	var out []*Ticket
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return records.Each(tx, func(_ []byte, t *Ticket) error {
			out = append(out, t.normalize())
			return nil
		})
	})
	return out, err
}

// Counts returns the number of tickets in each status.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return records.Each(tx, func(_ []byte, t *Ticket) error {
			switch t.Status {
			case enrich.StatusQueued:
				c.Queued++
			case enrich.StatusProcessing:
				c.Processing++
			case enrich.StatusCompleted:
				c.Completed++
			case enrich.StatusFailed:
				c.Failed++
			}
			c.Total++
			return nil
		})
	})
	return c, err
}

// ──────────────────────────────────────────────────
// Claiming
// ──────────────────────────────────────────────────

// ClaimNextQueued atomically moves the first queued ticket in index order
// to processing under workerID and returns it. It returns nil, nil when
// nothing is queued. The queue index is walked entry by entry, so a claim
// reads only the entries up to the one it takes.
func (r *Repository) ClaimNextQueued(ctx context.Context, workerID string) (*Ticket, error) {
	var claimed *Ticket
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		return queue.Walk(tx, func(key []byte, _ *bool) error {
			t, err := records.Get(tx, key)
			if err != nil {
				return err
			}
			if t == nil || t.Status != enrich.StatusQueued {
				return queue.Delete(tx, key)
			}

			now := r.now()
			t.Status = enrich.StatusProcessing
			t.WorkerID = workerID
			t.ClaimedAt = &now
			if err := records.Put(tx, key, t); err != nil {
				return err
			}
			if err := queue.Delete(tx, key); err != nil {
				return err
			}
			claimed = t.normalize()
			return kv.ErrStop
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ticket: claim: %w", err)
	}
	return claimed, nil
}

// ──────────────────────────────────────────────────
// Write-back
// ──────────────────────────────────────────────────

// Complete stores result and marks the ticket completed. Completing an
// already completed ticket overwrites its result. It returns nil, nil when
// the ticket is absent and enrich.ErrInvalidTransition when the ticket is
// queued or failed.
func (r *Repository) Complete(ctx context.Context, ticketID id.TicketID, result json.RawMessage) (*Ticket, error) {
	return r.finish(ctx, ticketID, enrich.StatusCompleted, func(t *Ticket) {
		t.Result = result
	})
}

// Fail marks the ticket failed. The retry count is left unchanged.
func (r *Repository) Fail(ctx context.Context, ticketID id.TicketID) (*Ticket, error) {
	return r.finish(ctx, ticketID, enrich.StatusFailed, nil)
}

func (r *Repository) finish(ctx context.Context, ticketID id.TicketID, status enrich.Status, mutate func(*Ticket)) (*Ticket, error) {
	var out *Ticket
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		t, err := records.Get(tx, ticketID.Key())
		if err != nil || t == nil {
			return err
		}
		if err := t.Status.Transition(status); err != nil {
			return err
		}

		now := r.now()
		t.Status = status
		t.CompletedAt = &now
		if mutate != nil {
			mutate(t)
		}
		if err := records.Put(tx, ticketID.Key(), t); err != nil {
			return err
		}
		out = t.normalize()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ticket: %s %s: %w", status, ticketID, err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Reclamation
// ──────────────────────────────────────────────────

// ReclaimStaleTickets runs Sweep and returns the number of tickets put back
// on the queue.
func (r *Repository) ReclaimStaleTickets(ctx context.Context, leaseTimeout time.Duration, maxRetries int) (int, error) {
	res, err := r.Sweep(ctx, leaseTimeout, maxRetries)
	if err != nil {
		return 0, err
	}
	return len(res.Requeued), nil
}

// Sweep examines every processing ticket in one write transaction. A
// ticket whose lease has expired is failed when its retry count has reached
// maxRetries; otherwise its retry count is incremented, its claim cleared,
// and it is queued again.
func (r *Repository) Sweep(ctx context.Context, leaseTimeout time.Duration, maxRetries int) (*SweepResult, error) {
	res := &SweepResult{}
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		now := r.now()

		var stale []*Ticket
		err := records.Each(tx, func(_ []byte, t *Ticket) error {
			if t.LeaseExpired(now, leaseTimeout) {
				stale = append(stale, t)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, t := range stale {
			if t.RetryCount >= maxRetries {
				t.Status = enrich.StatusFailed
				completed := now
				t.CompletedAt = &completed
				if err := records.Put(tx, t.ID.Key(), t); err != nil {
					return err
				}
				res.Exhausted = append(res.Exhausted, t.normalize())
				continue
			}

			t.RetryCount++
			t.Status = enrich.StatusQueued
			t.WorkerID = ""
			t.ClaimedAt = nil
			if err := records.Put(tx, t.ID.Key(), t); err != nil {
				return err
			}
			if err := putQueued(tx, t.ID); err != nil {
				return err
			}
			res.Requeued = append(res.Requeued, t.normalize())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ticket: sweep: %w", err)
	}
	return res, nil
}
