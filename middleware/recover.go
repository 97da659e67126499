package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that converts a handler panic into an attempt
// failure. The panic value and stack are logged.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (result json.RawMessage, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("ticket_id", a.Ticket.ID.String()),
					slog.String("entity_id", a.Ticket.EntityID.String()),
					slog.Int("attempt", a.Number),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				result = nil
				retErr = fmt.Errorf("panic in handler for ticket %s: %v", a.Ticket.ID, r)
			}
		}()
		return next(ctx)
	}
}
