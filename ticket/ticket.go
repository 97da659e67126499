// Package ticket implements the durable queue engine: the ticket record,
// atomic claiming, completion and failure write-back, and lease-based
// reclamation of work abandoned by crashed workers.
//
// # Tables
//
//	tickets              ticket id → Ticket
//	ticket-entity-index  entity id → ticket id
//	ticket-queue-index   ticket id → true, present while the ticket is queued
//
// The queue index is keyed by ticket id. Ticket ids are UUIDv7-based, so
// index order approximates creation order. Claim order is best-effort FIFO;
// a reclaimed ticket keeps its original position.
//
// # Claiming
//
// ClaimNextQueued runs as one write transaction. Because the store runs
// write transactions one at a time, two concurrent callers can never claim
// the same ticket. Index entries whose ticket is missing or no longer
// queued are removed as they are encountered.
//
// # Leases
//
// A claim is a lease of fixed duration measured from ClaimedAt. Nothing
// renews it. Sweep (driven by an external scheduler) requeues processing
// tickets whose lease has expired, or fails them once their reclamation
// budget is spent.
package ticket

import (
	"encoding/json"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
)

// Ticket is one unit of enrichment work for one entity.
type Ticket struct {
	ID          id.TicketID     `json:"id"                     msgpack:"id"`
	EntityID    id.EntityID     `json:"entity_id"              msgpack:"entityId"`
	Status      enrich.Status   `json:"status"                 msgpack:"status"`
	Result      json.RawMessage `json:"result,omitempty"       msgpack:"result,omitempty"`
	WorkerID    string          `json:"worker_id,omitempty"    msgpack:"workerId,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"   msgpack:"claimedAt,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" msgpack:"completedAt,omitempty"`
	RetryCount  int             `json:"retry_count"            msgpack:"retryCount"`
	TraceID     string          `json:"trace_id,omitempty"     msgpack:"traceId,omitempty"`
	CreatedAt   time.Time       `json:"created_at"             msgpack:"createdAt"`
}

// New returns a queued ticket for entityID carrying traceID.
func New(entityID id.EntityID, traceID string) *Ticket {
	return &Ticket{
		ID:        id.NewTicketID(),
		EntityID:  entityID,
		Status:    enrich.StatusQueued,
		TraceID:   traceID,
		CreatedAt: time.Now().UTC(),
	}
}

// LeaseExpired reports whether a processing ticket's claim is at least
// lease old at now. A processing ticket without a claim time is treated as
// expired.
func (t *Ticket) LeaseExpired(now time.Time, lease time.Duration) bool {
	if t.Status != enrich.StatusProcessing {
		return false
	}
	if t.ClaimedAt == nil {
		return true
	}
	return now.Sub(*t.ClaimedAt) >= lease
}

func (t *Ticket) normalize() *Ticket {
	t.CreatedAt = t.CreatedAt.UTC()
	if t.ClaimedAt != nil {
		c := t.ClaimedAt.UTC()
		t.ClaimedAt = &c
	}
	if t.CompletedAt != nil {
		c := t.CompletedAt.UTC()
		t.CompletedAt = &c
	}
	return t
}

// Counts is the per-status census of all tickets.
type Counts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// SweepResult lists the tickets a reclamation sweep changed.
type SweepResult struct {
	// Requeued tickets had retries left and are queued again.
	Requeued []*Ticket
	// Exhausted tickets had spent their retry budget and are now failed.
	Exhausted []*Ticket
}
