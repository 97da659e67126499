package entity

import (
	"context"
	"fmt"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/kv"
)

var (
	records = kv.NewTable[Entity]("entities")
	byName  = kv.NewTable[id.ID]("entity-name-index")
)

// Repository persists entities in a kv.Store.
type Repository struct {
	store kv.Store
}

// NewRepository returns a repository over store.
func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store}
}

// Create writes e and its name index entry in one transaction.
func (r *Repository) Create(ctx context.Context, e *Entity) error {
	return r.store.Update(ctx, func(tx kv.Tx) error {
		return r.Insert(tx, e)
	})
}

// Insert writes e inside an existing write transaction. A name that is
// already registered returns enrich.ErrEntityExists.
func (r *Repository) Insert(tx kv.Tx, e *Entity) error {
	switch {
	case e == nil, e.ID.IsNil():
		return fmt.Errorf("%w: missing id", enrich.ErrInvalidEntity)
	case e.Name == "":
		return enrich.ErrInvalidName
	case !e.Status.Valid():
		return fmt.Errorf("%w: %q", enrich.ErrInvalidStatus, e.Status)
	}

	existing, err := byName.Get(tx, []byte(e.Name))
	if err != nil {
		return err
	}
	if existing != nil && existing.String() != e.ID.String() {
		return fmt.Errorf("%w: %q", enrich.ErrEntityExists, e.Name)
	}

	if err := records.Put(tx, e.ID.Key(), e); err != nil {
		return err
	}
	return byName.Put(tx, []byte(e.Name), &e.ID)
}

// FindByID returns the entity, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, entityID id.EntityID) (*Entity, error) {
	var out *Entity
	err := r.store.View(ctx, func(tx kv.Tx) error {
		var err error
		out, err = r.FindByIDTx(tx, entityID)
		return err
	})
	return out, err
}

// FindByIDTx is FindByID inside an existing transaction.
func (r *Repository) FindByIDTx(tx kv.Tx, entityID id.EntityID) (*Entity, error) {
	e, err := records.Get(tx, entityID.Key())
	if err != nil || e == nil {
		return nil, err
	}
	return e.normalize(), nil
}

// FindByName resolves name through the name index. It returns nil when no
// entity carries that name.
func (r *Repository) FindByName(ctx context.Context, name string) (*Entity, error) {
	var out *Entity
	err := r.store.View(ctx, func(tx kv.Tx) error {
		var err error
		out, err = r.FindByNameTx(tx, name)
		return err
	})
	return out, err
}

// FindByNameTx is FindByName inside an existing transaction.
func (r *Repository) FindByNameTx(tx kv.Tx, name string) (*Entity, error) {
	if name == "" {
		return nil, nil
	}
	entityID, err := byName.Get(tx, []byte(name))
	if err != nil || entityID == nil {
		return nil, err
	}
	return r.FindByIDTx(tx, *entityID)
}

// UpdateStatus sets the entity's status. It returns nil, nil when the
// entity is absent. A terminal entity only accepts its own status again;
// any other change returns enrich.ErrInvalidTransition.
func (r *Repository) UpdateStatus(ctx context.Context, entityID id.EntityID, status enrich.Status) (*Entity, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", enrich.ErrInvalidStatus, status)
	}

	var out *Entity
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		e, err := r.FindByIDTx(tx, entityID)
		if err != nil || e == nil {
			return err
		}
		if e.Status.Terminal() && e.Status != status {
			return fmt.Errorf("%w: entity %s is %s", enrich.ErrInvalidTransition, entityID, e.Status)
		}
		e.Status = status
		if err := records.Put(tx, e.ID.Key(), e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entity: update status %s: %w", entityID, err)
	}
	return out, nil
}

// FindAll returns every entity in id order.
func (r *Repository) FindAll(ctx context.Context) ([]*Entity, error) {
	var out []*Entity
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return records.Each(tx, func(_ []byte, e *Entity) error {
			out = append(out, e.normalize())
			return nil
		})
	})
	return out, err
}
