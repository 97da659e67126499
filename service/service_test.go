package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/ext"
	"github.com/xraph/enrich/service"
	"github.com/xraph/enrich/store/memory"
	"github.com/xraph/enrich/ticket"
)

type harness struct {
	svc      *service.Service
	tickets  *ticket.Repository
	entities *entity.Repository
	created  *atomic.Int32
}

type createdCounter struct{ n *atomic.Int32 }

func (c createdCounter) Name() string { return "created-counter" }

func (c createdCounter) OnTicketCreated(context.Context, *ticket.Ticket, string) error {
	c.n.Add(1)
	return nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{
		tickets:  ticket.NewRepository(s),
		entities: entity.NewRepository(s),
		created:  &atomic.Int32{},
	}
	reg := ext.NewRegistry(nil)
	reg.Register(createdCounter{h.created})
	h.svc = service.New(s, h.entities, h.tickets, service.WithExtensions(reg))
	return h
}

// claimAnd claims the only queued ticket and applies finish to it.
func (h *harness) claimAnd(t *testing.T, finish func(*ticket.Ticket)) {
	t.Helper()
	tk, err := h.tickets.ClaimNextQueued(context.Background(), "w-0")
	if err != nil || tk == nil {
		t.Fatalf("ClaimNextQueued: %+v, %v", tk, err)
	}
	finish(tk)
}

func TestSubmit_Idempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, "sparrow")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Status != enrich.StatusQueued || first.Name != "sparrow" {
		t.Errorf("unexpected summary %+v", first)
	}

	second, err := h.svc.Submit(ctx, "sparrow")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.ID.String() != first.ID.String() {
		t.Errorf("resubmission returned id %s, want %s", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("resubmission CreatedAt = %v, want %v", second.CreatedAt, first.CreatedAt)
	}

	c, err := h.svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if c.Total != 1 || c.Queued != 1 {
		t.Errorf("expected exactly one queued ticket, got %+v", c)
	}
	if h.created.Load() != 1 {
		t.Errorf("expected 1 TicketCreated event, got %d", h.created.Load())
	}
}

func TestSubmit_EmptyName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if _, err := h.svc.Submit(context.Background(), ""); !errors.Is(err, enrich.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if _, err := h.svc.Query(context.Background(), ""); !errors.Is(err, enrich.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName from Query, got %v", err)
	}
}

func TestSubmit_StampsTraceID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := enrich.WithTraceID(context.Background(), "a1b2c3d4")

	sum, err := h.svc.Submit(ctx, "robin")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sum.TraceID != "a1b2c3d4" {
		t.Errorf("summary trace id = %q", sum.TraceID)
	}

	tk, err := h.tickets.FindByEntityID(ctx, sum.ID)
	if err != nil || tk == nil {
		t.Fatalf("FindByEntityID: %+v, %v", tk, err)
	}
	if tk.TraceID != "a1b2c3d4" || tk.RetryCount != 0 || tk.Status != enrich.StatusQueued {
		t.Errorf("unexpected ticket %+v", tk)
	}

	// A resubmission echoes the caller's trace id without touching the ticket.
	again, _ := h.svc.Submit(enrich.WithTraceID(context.Background(), "ffff0000"), "robin")
	if again.TraceID != "ffff0000" {
		t.Errorf("resubmission trace id = %q, want caller's", again.TraceID)
	}
	tk, _ = h.tickets.FindByEntityID(ctx, sum.ID)
	if tk.TraceID != "a1b2c3d4" {
		t.Errorf("ticket trace id changed to %q", tk.TraceID)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if r, err := h.svc.Query(ctx, "nobody"); err != nil || r != nil {
		t.Errorf("Query(unknown) = %+v, %v; want nil, nil", r, err)
	}

	sum, _ := h.svc.Submit(ctx, "wren")
	if r, err := h.svc.Query(ctx, "wren"); err != nil || r != nil {
		t.Errorf("Query(queued) = %+v, %v; want nil, nil", r, err)
	}

	h.claimAnd(t, func(tk *ticket.Ticket) {
		if r, _ := h.svc.Query(ctx, "wren"); r != nil {
			t.Errorf("Query(processing) = %+v, want nil", r)
		}
		if _, err := h.tickets.Complete(ctx, tk.ID, json.RawMessage(`{"title":"Wren"}`)); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	})

	r, err := h.svc.Query(ctx, "wren")
	if err != nil || r == nil {
		t.Fatalf("Query(completed) = %+v, %v", r, err)
	}
	if r.ID.String() != sum.ID.String() || r.Status != enrich.StatusCompleted {
		t.Errorf("unexpected result %+v", r)
	}
	if string(r.Result) != `{"title":"Wren"}` {
		t.Errorf("result = %s", r.Result)
	}
}

func TestQuery_FailedReadsAsAbsent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, _ = h.svc.Submit(ctx, "owl")
	h.claimAnd(t, func(tk *ticket.Ticket) {
		if _, err := h.tickets.Fail(ctx, tk.ID); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	})

	if r, err := h.svc.Query(ctx, "owl"); err != nil || r != nil {
		t.Errorf("Query(failed) = %+v, %v; want nil, nil", r, err)
	}

	// Resubmitting a failed name does not create a new ticket.
	_, _ = h.svc.Submit(ctx, "owl")
	all, _ := h.svc.Tickets(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 ticket, got %d", len(all))
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	sum, _ := h.svc.Submit(ctx, "heron")
	h.claimAnd(t, func(tk *ticket.Ticket) {
		// Ticket written back, entity update lost.
		if _, err := h.tickets.Complete(ctx, tk.ID, json.RawMessage(`1`)); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	})
	_, _ = h.svc.Submit(ctx, "kite")

	n, err := h.svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 1 {
		t.Errorf("repaired = %d, want 1", n)
	}

	e, _ := h.entities.FindByID(ctx, sum.ID)
	if e.Status != enrich.StatusCompleted {
		t.Errorf("entity status = %s, want completed", e.Status)
	}

	kite, _ := h.entities.FindByName(ctx, "kite")
	if kite.Status != enrich.StatusQueued {
		t.Errorf("queued entity changed to %s", kite.Status)
	}

	if n, _ := h.svc.Reconcile(ctx); n != 0 {
		t.Errorf("second Reconcile repaired %d, want 0", n)
	}
}
