// Package realtime implements the Realtime Fan-out layer (§4.7): a
// per-instance connection hub backed by a shared pub/sub bus so that
// workflow events and co-review presence reach every subscribed client
// regardless of which service instance holds its WebSocket connection.
//
// Grounded on the teacher's plugin.go OnWebSocketConnect/handleWebSocketEvent
// dispatch (a type-keyed switch over inbound frames) and server/poller.go's
// background-loop shape for the heartbeat sweep.
package realtime

import (
	"time"
)

// MessageType enumerates every client<->server frame shape in §6's
// "Realtime transport" section.
type MessageType string

const (
	// Server -> client
	TypeConnected           MessageType = "connected"
	TypeAuthenticated       MessageType = "authenticated"
	TypeSubscribed          MessageType = "subscribed"
	TypeUnsubscribed        MessageType = "unsubscribed"
	TypeReviewJoined        MessageType = "review_joined"
	TypeSessionStarted      MessageType = "session_started"
	TypeSessionJoined       MessageType = "session_joined"
	TypeWorkflowUpdate      MessageType = "workflow_update"
	TypeCommentPosted       MessageType = "comment_posted"
	TypeTestGenerated       MessageType = "test_generated"
	TypeAnalysisComplete    MessageType = "analysis_complete"
	TypePresenceUpdate      MessageType = "presence_update"
	TypeCursorMove          MessageType = "cursor_move"
	TypeNavigationSync      MessageType = "navigation_sync"
	TypeReviewSessionUpdate MessageType = "review_session_update"
	TypeError               MessageType = "error"
	TypePong                MessageType = "pong"

	// Client -> server
	TypeAuthenticate = "authenticate"
	TypeSubscribe    = "subscribe"
	TypeJoinReview   = "join_review"
	TypeNavigateTo   = "navigate_to"
	TypeUpdateStatus = "update_status"
	TypeStartSession = "start_session"
	TypeJoinSession  = "join_session"
	TypeToggleSync   = "toggle_sync"
	TypePing         = "ping"
)

// Message is the wire envelope for every server->client frame, per §4.7
// "Message shape".
type Message struct {
	Type       MessageType `json:"type"`
	WorkflowID string      `json:"workflowId,omitempty"`
	Data       any         `json:"data,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// inboundFrame is the generic shape an inbound client frame is first
// unmarshaled into before dispatch, since its Data payload is type-specific.
type inboundFrame struct {
	Type           string   `json:"type"`
	Token          string   `json:"token,omitempty"`
	RepositoryIDs  []string `json:"repositoryIds,omitempty"`
	PRNumber       int      `json:"prNumber,omitempty"`
	RepositoryID   string   `json:"repositoryId,omitempty"`
	File           string   `json:"file,omitempty"`
	Line           int      `json:"line,omitempty"`
	Column         int      `json:"column,omitempty"`
	Status         string   `json:"status,omitempty"`
	SessionID      string   `json:"sessionId,omitempty"`
	Enabled        bool     `json:"enabled,omitempty"`
}

// busEnvelope is what travels over the shared pub/sub bus (§5: "Provider
// token-bucket... stored in the pub/sub bus to share across instances";
// the same bus carries fan-out messages keyed by repo or user).
type busEnvelope struct {
	Key     string  `json:"key"`     // repositoryId or userId
	Message Message `json:"message"`
}
