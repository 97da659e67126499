package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/enrich/id"
)

// HandlerFunc performs the enrichment for one entity and returns its result
// as JSON. A nil result is stored as an empty result.
type HandlerFunc func(ctx context.Context, entityID id.EntityID) (json.RawMessage, error)

// Typed wraps a handler returning T into a HandlerFunc that JSON-encodes the
// result.
func Typed[T any](fn func(ctx context.Context, entityID id.EntityID) (T, error)) HandlerFunc {
	return func(ctx context.Context, entityID id.EntityID) (json.RawMessage, error) {
		v, err := fn(ctx, entityID)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal result for entity %s: %w", entityID, err)
		}
		return data, nil
	}
}
