package enrich

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("enrich: no store configured")
	ErrStoreClosed = errors.New("enrich: store closed")

	// Lifecycle errors.
	ErrNotBuilt = errors.New("enrich: enricher not built, use engine.Build")

	// Validation errors.
	ErrInvalidName   = errors.New("enrich: entity name is required")
	ErrInvalidTicket = errors.New("enrich: invalid ticket")
	ErrInvalidEntity = errors.New("enrich: invalid entity")
	ErrNoHandler     = errors.New("enrich: no job handler configured")
	ErrEntityExists  = errors.New("enrich: entity name already registered")

	// State errors.
	ErrInvalidStatus     = errors.New("enrich: invalid status")
	ErrInvalidTransition = errors.New("enrich: invalid status transition")
)
