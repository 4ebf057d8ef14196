package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

// decisionRequest is the POST /decisions wire shape: a reviewer reaction to
// a published finding, plus the lengths Record needs for the verbosity
// signal (§4.6).
type decisionRequest struct {
	RepositoryID      string                 `json:"repositoryId"`
	WorkflowID        string                 `json:"workflowId"`
	CommentArtifactID string                 `json:"commentArtifactId"`
	ReviewerID        string                 `json:"reviewerId"`
	Action            domain.DecisionAction  `json:"action"`
	Context           domain.DecisionContext `json:"context"`
	Feedback          string                 `json:"feedback"`
	AILength          int                    `json:"aiLength"`
	HumanEditLength    int                   `json:"humanEditLength"`
}

func (h *handlers) postDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.New(apperr.Validation, "httpapi.postDecision", err))
		return
	}
	if req.RepositoryID == "" || req.ReviewerID == "" {
		writeErr(w, r, apperr.Newf(apperr.Validation, "httpapi.postDecision", "repositoryId and reviewerId are required"))
		return
	}

	decision := domain.ReviewerDecision{
		RepositoryID:      req.RepositoryID,
		WorkflowID:        req.WorkflowID,
		CommentArtifactID: req.CommentArtifactID,
		ReviewerID:        req.ReviewerID,
		Action:            req.Action,
		Context:           req.Context,
		Feedback:          req.Feedback,
		Timestamp:         time.Now(),
	}

	if err := h.d.Decisions.Save(r.Context(), &decision); err != nil {
		writeErr(w, r, apperr.New(apperr.DatabaseError, "httpapi.postDecision", err))
		return
	}

	model, err := h.d.Preferences.Record(r.Context(), decision, req.AILength, req.HumanEditLength)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, model)
}
