package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/gating"
)

// mergeReadyRequest is the POST /gating/merge-ready wire shape: the PR
// state signals the frontend already has on hand (checks, approvals, base
// sync, conflicts) rather than something this service polls for itself.
type mergeReadyRequest struct {
	ChecksPass        bool `json:"checksPass"`
	ApprovalsCount    int  `json:"approvalsCount"`
	RequiredApprovals int  `json:"requiredApprovals"`
	IsUpToDate        bool `json:"isUpToDate"`
	HasConflicts      bool `json:"hasConflicts"`
}

func (h *handlers) mergeReady(w http.ResponseWriter, r *http.Request) {
	var req mergeReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.New(apperr.Validation, "httpapi.mergeReady", err))
		return
	}

	result := gating.MergeReady(gating.MergeReadyInput{
		ChecksPass:        req.ChecksPass,
		ApprovalsCount:    req.ApprovalsCount,
		RequiredApprovals: req.RequiredApprovals,
		IsUpToDate:        req.IsUpToDate,
		HasConflicts:      req.HasConflicts,
	})
	writeJSON(w, http.StatusOK, result)
}
