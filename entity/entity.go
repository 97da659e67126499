// Package entity defines the named domain record being enriched and its
// repository.
//
// An entity is created by the submission service together with exactly one
// ticket. Its status mirrors that ticket's outcome: the worker writes
// completed or failed after the ticket write-back, in a separate
// transaction. A crash between the two writes leaves the entity behind its
// ticket until the service's Reconcile repairs it.
//
// Names are unique. The entity-name-index table maps each name to its
// entity id.
package entity

import (
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
)

// Entity is a named record whose enrichment is tracked by a ticket.
type Entity struct {
	ID        id.EntityID   `json:"id"         msgpack:"id"`
	Name      string        `json:"name"       msgpack:"name"`
	Status    enrich.Status `json:"status"     msgpack:"status"`
	CreatedAt time.Time     `json:"created_at" msgpack:"createdAt"`
}

// New returns a queued entity with a fresh ID.
func New(name string) *Entity {
	return &Entity{
		ID:        id.NewEntityID(),
		Name:      name,
		Status:    enrich.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

func (e *Entity) normalize() *Entity {
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}
