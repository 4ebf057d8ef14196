package realtime

import "time"

const idleGCThreshold = 24 * time.Hour

// gcIdleSessionsAndPresence removes ReviewSessions and Presence records
// that have had no activity in 24h, per §3 "garbage-collected when the
// last participant disconnects or after 24h idle". unregister removes a
// disconnecting connection's Presence record inline but leaves its
// ReviewSession in place; ReviewSessions are removed only by this sweep,
// once idle for 24h, whether or not any participant is still connected.
func (h *Hub) gcIdleSessionsAndPresence(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, session := range h.sessions {
		if now.Sub(session.LastActivity) > idleGCThreshold {
			delete(h.sessions, id)
		}
	}
	for key, p := range h.presence {
		if now.Sub(p.LastActivity) > idleGCThreshold {
			delete(h.presence, key)
		}
	}
}
