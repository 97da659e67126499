package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// Timeout returns middleware that cancels an attempt's context after d.
// A zero or negative d leaves attempts unbounded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Attempt, next Handler) (json.RawMessage, error) {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
