// Package service is the submission and query boundary.
//
// Submission is idempotent by entity name: a name that is already
// registered returns its current summary and creates nothing, even when the
// existing ticket has failed. A new name creates the entity and its ticket
// in one write transaction.
//
// Query returns a result only for an entity whose ticket has completed.
// Unknown names, tickets still in flight, and failed tickets all read as
// absent.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/ticket"
)

// Summary is returned by Submit.
type Summary struct {
	ID        id.EntityID   `json:"id"`
	Name      string        `json:"name"`
	Status    enrich.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// Result is returned by Query for a completed entity.
type Result struct {
	ID        id.EntityID     `json:"id"`
	Name      string          `json:"name"`
	Status    enrich.Status   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithExtensions sets the registry notified of new tickets.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service orchestrates the entity and ticket repositories.
type Service struct {
	store      kv.Store
	entities   *entity.Repository
	tickets    *ticket.Repository
	extensions *ext.Registry
	logger     *slog.Logger
}

// New returns a Service over store. The repositories must be backed by the
// same store.
func New(store kv.Store, entities *entity.Repository, tickets *ticket.Repository, opts ...Option) *Service {
	s := &Service{
		store:    store,
		entities: entities,
		tickets:  tickets,
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

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

// Submit registers name for enrichment. The trace id carried by ctx (see
// enrich.WithTraceID) is stamped on a newly created ticket and echoed in
// the summary.
func (s *Service) Submit(ctx context.Context, name string) (*Summary, error) {
	if name == "" {
		return nil, enrich.ErrInvalidName
	}
	traceID := enrich.TraceIDFrom(ctx)

	var (
		e       *entity.Entity
		created *ticket.Ticket
	)
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		existing, err := s.entities.FindByNameTx(tx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			e = existing
			return nil
		}

		e = entity.New(name)
		if err := s.entities.Insert(tx, e); err != nil {
			return err
		}
		created = ticket.New(e.ID, traceID)
		return s.tickets.Insert(tx, created)
	})
	if err != nil {
		return nil, fmt.Errorf("service: submit %q: %w", name, err)
	}

	if created != nil {
		s.logger.Info("entity submitted",
			slog.String("entity_id", e.ID.String()),
			slog.String("ticket_id", created.ID.String()),
			slog.String("name", name),
			slog.String("trace_id", traceID),
		)
		s.extensions.EmitTicketCreated(ctx, created, name)
	}

	return &Summary{
		ID:        e.ID,
		Name:      e.Name,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
		TraceID:   traceID,
	}, nil
}

// ──────────────────────────────────────────────────
// Query
// ──────────────────────────────────────────────────

// Query returns the enrichment result for name, or nil unless its ticket
// has completed.
func (s *Service) Query(ctx context.Context, name string) (*Result, error) {
	if name == "" {
		return nil, enrich.ErrInvalidName
	}

	var out *Result
	err := s.store.View(ctx, func(tx kv.Tx) error {
		e, err := s.entities.FindByNameTx(tx, name)
		if err != nil || e == nil {
			return err
		}
		t, err := s.tickets.FindByEntityIDTx(tx, e.ID)
		if err != nil || t == nil || t.Status != enrich.StatusCompleted {
			return err
		}
		out = &Result{
			ID:        e.ID,
			Name:      e.Name,
			Status:    t.Status,
			CreatedAt: e.CreatedAt,
			Result:    t.Result,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: query %q: %w", name, err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// Tickets lists every ticket in id order.
func (s *Service) Tickets(ctx context.Context) ([]*ticket.Ticket, error) {
	return s.tickets.FindAll(ctx)
}

// QueueStats returns ticket counts by status.
func (s *Service) QueueStats(ctx context.Context) (ticket.Counts, error) {
	return s.tickets.Counts(ctx)
}

// ──────────────────────────────────────────────────
// Repair
// ──────────────────────────────────────────────────

// Reconcile copies each terminal ticket status onto its entity when the
// entity is still non-terminal. This closes the gap left when a worker
// stops between its ticket write-back and its entity update, and mirrors
// failures recorded by lease reclamation. It returns the number of entities
// repaired.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	tickets, err := s.tickets.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: reconcile: %w", err)
	}

	repaired := 0
	for _, t := range tickets {
		if !t.Status.Terminal() {
			continue
		}
		e, err := s.entities.FindByID(ctx, t.EntityID)
		if err != nil {
			return repaired, fmt.Errorf("service: reconcile: %w", err)
		}
		if e == nil || e.Status == t.Status || e.Status.Terminal() {
			continue
		}

		if _, err := s.entities.UpdateStatus(ctx, e.ID, t.Status); err != nil {
			if errors.Is(err, enrich.ErrInvalidTransition) {
				continue
			}
			return repaired, fmt.Errorf("service: reconcile: %w", err)
		}
		repaired++
		s.logger.Info("entity status repaired",
			slog.String("entity_id", e.ID.String()),
			slog.String("ticket_id", t.ID.String()),
			slog.String("from", string(e.Status)),
			slog.String("to", string(t.Status)),
		)
	}
	return repaired, nil
}
