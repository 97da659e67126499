// Package api provides the HTTP facade over an enrich Engine.
//
// Routes:
//
//	GET  /health             liveness and uptime
//	POST /v1/entities        submit {"name": "..."}; idempotent by name
//	GET  /v1/entities?name=  completed result, or 404
//	GET  /v1/admin/queue     ticket counts by status
//	GET  /v1/admin/tickets   every ticket with claim metadata
//	POST /v1/admin/reclaim   run one reclamation sweep now
//
// Every request carries a trace id: the X-Trace-ID request header when
// present, otherwise a generated 8-character token. It is echoed in the
// X-Trace-ID response header and stamped on tickets created by the request.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/enrich/engine"
)

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request and error logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// API wires the HTTP handlers to an Engine.
type API struct {
	eng     *engine.Engine
	logger  *slog.Logger
	started time.Time
}

// New creates an API over eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:     eng,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(TraceID)
	r.Use(a.requestLogger)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/health", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/entities", a.submit)
		r.Get("/entities", a.query)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/queue", a.queueStats)
			r.Get("/tickets", a.listTickets)
			r.Post("/reclaim", a.reclaim)
		})
	})
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(a.started).Seconds(),
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("trace_id", TraceIDFrom(r.Context())),
		)
	})
}
