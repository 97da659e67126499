package api

import (
	"net/http"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
)

// TicketView is one entry of GET /v1/admin/tickets. Results are omitted.
type TicketView struct {
	ID          id.TicketID   `json:"id"`
	EntityID    id.EntityID   `json:"entity_id"`
	Status      enrich.Status `json:"status"`
	RetryCount  int           `json:"retry_count"`
	WorkerID    *string       `json:"worker_id"`
	ClaimedAt   *time.Time    `json:"claimed_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	TraceID     string        `json:"trace_id,omitempty"`
}

func (a *API) queueStats(w http.ResponseWriter, r *http.Request) {
	c, err := a.eng.Service().QueueStats(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := a.eng.Service().Tickets(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	out := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		v := TicketView{
			ID:          t.ID,
			EntityID:    t.EntityID,
			Status:      t.Status,
			RetryCount:  t.RetryCount,
			ClaimedAt:   t.ClaimedAt,
			CompletedAt: t.CompletedAt,
			TraceID:     t.TraceID,
		}
		if t.WorkerID != "" {
			workerID := t.WorkerID
			v.WorkerID = &workerID
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) reclaim(w http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Sweeper().RunOnce(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
