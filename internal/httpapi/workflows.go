package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/prreview/orchestrator/internal/apperr"
)

func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := h.d.Workflows.Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, apperr.New(apperr.DatabaseError, "httpapi.getWorkflow", err))
		return
	}
	if wf == nil {
		writeErr(w, r, apperr.New(apperr.NotFound, "httpapi.getWorkflow", errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *handlers) getPrediction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pred, err := h.d.Predictor.Predict(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// resolveWorkflow implements the reviewer-resolved-all-comments transition
// out of AWAITING_REVIEW (§4.2).
func (h *handlers) resolveWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.d.Engine.ResolveReview(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

const errNotFound = notFoundError("not found")
