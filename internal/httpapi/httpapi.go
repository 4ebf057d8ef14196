// Package httpapi wires the HTTP surface named across the spec: the
// provider webhook endpoint, the REST endpoints the webapp frontend reads
// (workflow detail, predictions, decisions, preferences, merge-ready
// gating), the WebSocket upgrade endpoint, and a Prometheus /metrics
// endpoint.
//
// Grounded on the teacher's server/api.go initRouter: a gorilla/mux
// router, one unauthenticated webhook route, a subrouter for everything
// else, and a metrics middleware wrapping every route -- generalized here
// from Mattermost-session auth to the provider-neutral auth this service
// needs, and from the teacher's hand-rolled endpoint counters to real
// Prometheus metrics (client_golang), since real metrics are in this
// module's domain stack (DESIGN.md) and the teacher's map+regex counters
// were themselves a stand-in for not having a metrics library wired in a
// Mattermost plugin's sandboxed environment.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/predictive"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/realtime"
	"github.com/prreview/orchestrator/internal/store"
	"github.com/prreview/orchestrator/internal/workflow"
)

// Deps is every collaborator the HTTP surface calls into. One field per
// component, matching the constructor-injection shape every other package
// in this tree uses (orchestrator.New, publisher.New, ...).
type Deps struct {
	Webhook     http.Handler
	Workflows   store.WorkflowRepo
	Engine      *workflow.Engine
	Predictor   *predictive.Predictor
	Preferences *preference.Store
	Decisions   store.DecisionRepo
	Hub         *realtime.Hub
	Auth        realtime.Authenticator
	Log         *logrus.Entry
}

// NewRouter builds the full HTTP surface.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(metricsMiddleware)

	// Provider webhooks verify their own HMAC signature; no session auth.
	router.Handle("/api/webhooks/{provider}", d.Webhook).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	h := &handlers{d: d}

	api.HandleFunc("/workflows/{id}", h.getWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/predictions", h.getPrediction).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/resolve", h.resolveWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/decisions", h.postDecision).Methods(http.MethodPost)
	api.HandleFunc("/repositories/{id}/preferences", h.getPreferences).Methods(http.MethodGet)
	api.HandleFunc("/repositories/{id}/preferences", h.patchPreferences).Methods(http.MethodPatch)
	api.HandleFunc("/gating/merge-ready", h.mergeReady).Methods(http.MethodPost)

	router.HandleFunc("/ws", h.serveWebSocket)
	router.Handle("/metrics", metricsHandler())

	return router
}

type handlers struct {
	d Deps
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errResponse is the §7 user-visible failure contract: {code, message,
// requestId, details?}.
type errResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-Id")
	kind := apperr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), errResponse{
		Code:      string(kind),
		Message:   err.Error(),
		RequestID: requestID,
	})
}
