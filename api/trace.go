package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xraph/enrich"
)

// TraceHeader carries the correlation token on requests and responses.
const TraceHeader = "X-Trace-ID"

// TraceID is middleware that attaches a correlation token to the request
// context and echoes it in the response.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()[:8]
		}
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(enrich.WithTraceID(r.Context(), traceID)))
	})
}

// TraceIDFrom returns the request's correlation token.
func TraceIDFrom(ctx context.Context) string {
	return enrich.TraceIDFrom(ctx)
}
