package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each attempt's start and outcome.
// A failure that will be retried is logged at warn; the final failure at
// error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (json.RawMessage, error) {
		attrs := []any{
			slog.String("ticket_id", a.Ticket.ID.String()),
			slog.String("entity_id", a.Ticket.EntityID.String()),
			slog.String("worker_id", a.WorkerID),
			slog.Int("attempt", a.Number),
			slog.Int("max_attempts", a.Max),
		}
		if a.Ticket.TraceID != "" {
			attrs = append(attrs, slog.String("trace_id", a.Ticket.TraceID))
		}

		logger.Debug("attempt started", attrs...)

		start := time.Now()
		result, err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			logger.Info("attempt succeeded", attrs...)
		case a.Last():
			logger.Error("attempt failed", append(attrs, slog.String("error", err.Error()))...)
		default:
			logger.Warn("attempt failed, retrying", append(attrs, slog.String("error", err.Error()))...)
		}

		return result, err
	}
}
