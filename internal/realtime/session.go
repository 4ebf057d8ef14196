package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/prreview/orchestrator/internal/domain"
)

// startSession creates a ReviewSession hosted by c and admits c as its
// first participant.
func (h *Hub) startSession(c *Connection, repositoryID string, prNumber int) *domain.ReviewSession {
	session := &domain.ReviewSession{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		PRNumber:     prNumber,
		HostUserID:   c.userID,
		Participants: []string{c.userID},
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()
	c.sessionID = session.ID
	return session
}

// joinSession admits c as a participant of an existing session.
func (h *Hub) joinSession(c *Connection, sessionID string) (*domain.ReviewSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.sessions[sessionID]
	if !ok {
		return nil, false
	}
	for _, p := range session.Participants {
		if p == c.userID {
			c.sessionID = sessionID
			return session, true
		}
	}
	session.Participants = append(session.Participants, c.userID)
	session.LastActivity = time.Now()
	c.sessionID = sessionID
	return session, true
}

// toggleSync flips SyncNavigation, but only for the session's hostUserId,
// per §4.7 "Only the hostUserId of a ReviewSession may toggle
// syncNavigation or broadcast navigation_sync".
func (h *Hub) toggleSync(c *Connection, enabled bool) (*domain.ReviewSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.sessions[c.sessionID]
	if !ok || session.HostUserID != c.userID {
		return nil, false
	}
	session.SyncNavigation = enabled
	session.LastActivity = time.Now()
	return session, true
}

// navigateTo broadcasts a navigation_sync frame to the session's other
// participants, enforcing the same host-only invariant.
func (h *Hub) navigateTo(c *Connection, file string, line int) bool {
	h.mu.Lock()
	session, ok := h.sessions[c.sessionID]
	if !ok || session.HostUserID != c.userID || !session.SyncNavigation {
		h.mu.Unlock()
		return false
	}
	session.CurrentFile = file
	session.CurrentLine = line
	session.LastActivity = time.Now()
	participants := append([]string(nil), session.Participants...)
	h.mu.Unlock()

	msg := Message{Type: TypeNavigationSync, Data: map[string]any{
		"sessionId": session.ID, "file": file, "line": line,
	}, Timestamp: time.Now()}
	for _, userID := range participants {
		if userID == c.userID {
			continue
		}
		h.deliverToUser(userID, msg)
	}
	return true
}

// broadcastSessionUpdate notifies every participant of a session that its
// state changed (join, sync toggle).
func (h *Hub) broadcastSessionUpdate(session *domain.ReviewSession) {
	msg := Message{Type: TypeReviewSessionUpdate, Data: session, Timestamp: time.Now()}
	for _, userID := range session.Participants {
		h.deliverToUser(userID, msg)
	}
}

// cursorMove broadcasts a cursor_move frame to the PR's review presence
// set, but only if the sender has joined that review, per §4.7
// "cursor_move messages are dropped if the sender is not joined to the
// PR's review".
func (h *Hub) cursorMove(c *Connection, file string, line, column int) {
	if c.reviewKey == "" {
		return
	}
	h.mu.RLock()
	conns := h.prReview[c.reviewKey]
	targets := make([]*Connection, 0, len(conns))
	for other := range conns {
		if other != c {
			targets = append(targets, other)
		}
	}
	h.mu.RUnlock()

	msg := Message{Type: TypeCursorMove, Data: map[string]any{
		"userId": c.userID, "file": file, "line": line, "column": column,
	}, Timestamp: time.Now()}
	for _, other := range targets {
		other.deliver(msg)
	}
}
