package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// SubmitRequest is the body of POST /v1/entities.
type SubmitRequest struct {
	Name string `json:"name"`
}

const maxBodyBytes = 1 << 20

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	sum, err := a.eng.Service().Submit(r.Context(), name)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (a *API) query(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, `query parameter "name" is required`)
		return
	}

	res, err := a.eng.Service().Query(r.Context(), name)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "not found or not yet completed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
