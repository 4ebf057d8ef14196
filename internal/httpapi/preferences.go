package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func (h *handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	model, err := h.d.Preferences.Model(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

type patchPreferencesRequest struct {
	CustomRules []domain.TeamRule `json:"customRules"`
}

func (h *handlers) patchPreferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req patchPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.New(apperr.Validation, "httpapi.patchPreferences", err))
		return
	}

	model, err := h.d.Preferences.SetCustomRules(r.Context(), id, req.CustomRules)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}
