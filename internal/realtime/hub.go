package realtime

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/domain"
)

// Authenticator verifies the token sent in an {type: authenticate} frame
// and resolves it to a user id. Implementations are injected by cmd/server;
// realtime itself only enforces the "authenticated before any subscribe"
// invariant (§4.7).
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// Hub is the per-instance realtime fan-out coordinator: it owns every
// WebSocket connection accepted by this process, the three in-process
// membership sets from §4.7, and the shared Bus used to reach connections
// held by other instances.
type Hub struct {
	mu sync.RWMutex

	subscribers map[string]map[*Connection]struct{} // repositoryId -> conns
	userConns   map[string]map[*Connection]struct{} // userId -> conns
	prReview    map[string]map[*Connection]struct{} // repoKey(pr) -> joined conns

	sessions map[string]*domain.ReviewSession // sessionId -> session
	presence map[string]*domain.Presence      // repoKey(pr)#userId -> presence

	conns map[*Connection]struct{} // every live connection, for the heartbeat sweep

	auth Authenticator
	bus  *Bus
	log  *logrus.Entry
}

// NewHub wires a Hub to bus, subscribing to both shared channels so that
// fan-out messages published by any instance (including this one) reach
// this instance's local connections.
func NewHub(bus *Bus, auth Authenticator, log *logrus.Entry) *Hub {
	h := &Hub{
		subscribers: make(map[string]map[*Connection]struct{}),
		userConns:   make(map[string]map[*Connection]struct{}),
		prReview:    make(map[string]map[*Connection]struct{}),
		sessions:    make(map[string]*domain.ReviewSession),
		presence:    make(map[string]*domain.Presence),
		conns:       make(map[*Connection]struct{}),
		auth:        auth,
		bus:         bus,
		log:         log,
	}
	if err := bus.subscribe(subjectRepoChannel, h.deliverToRepo); err != nil {
		log.WithError(err).Error("failed to subscribe to repo channel")
	}
	if err := bus.subscribe(subjectUserChannel, h.deliverToUser); err != nil {
		log.WithError(err).Error("failed to subscribe to user channel")
	}
	return h
}

func reviewKey(repositoryID string, prNumber int) string {
	return repositoryID + "#" + itoa(prNumber)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// deliverToRepo is invoked for every message published on subjectRepoChannel
// (by any instance) and fans it out to this instance's local subscribers.
func (h *Hub) deliverToRepo(repositoryID string, msg Message) {
	h.mu.RLock()
	conns := h.subscribers[repositoryID]
	targets := make([]*Connection, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.deliver(msg)
	}
}

func (h *Hub) deliverToUser(userID string, msg Message) {
	h.mu.RLock()
	conns := h.userConns[userID]
	targets := make([]*Connection, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.deliver(msg)
	}
}

// EmitWorkflowUpdate implements workflow.EventEmitter, broadcasting the
// workflow's new state to every connection subscribed to its repository.
func (h *Hub) EmitWorkflowUpdate(wf *domain.Workflow) {
	msg := Message{Type: TypeWorkflowUpdate, WorkflowID: wf.ID, Data: wf, Timestamp: time.Now()}
	h.bus.PublishToRepo(wf.RepositoryID, msg)
	h.deliverToRepo(wf.RepositoryID, msg)
}

// EmitArtifact broadcasts a published artifact (comment_posted,
// test_generated, analysis_complete) to a workflow's repository
// subscribers.
func (h *Hub) EmitArtifact(repositoryID, workflowID string, kind MessageType, data any) {
	msg := Message{Type: kind, WorkflowID: workflowID, Data: data, Timestamp: time.Now()}
	h.bus.PublishToRepo(repositoryID, msg)
	h.deliverToRepo(repositoryID, msg)
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	for repo, set := range h.subscribers {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subscribers, repo)
		}
	}
	if c.userID != "" {
		if set, ok := h.userConns[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.userConns, c.userID)
			}
		}
	}
	if c.reviewKey != "" {
		if set, ok := h.prReview[c.reviewKey]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.prReview, c.reviewKey)
			}
		}
		delete(h.presence, c.reviewKey+"#"+c.userID)
		h.broadcastPresenceLocked(c.reviewKey)
	}
}

func (h *Hub) subscribeRepos(c *Connection, repositoryIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, repo := range repositoryIDs {
		set, ok := h.subscribers[repo]
		if !ok {
			set = make(map[*Connection]struct{})
			h.subscribers[repo] = set
		}
		set[c] = struct{}{}
	}
	set, ok := h.userConns[c.userID]
	if !ok {
		set = make(map[*Connection]struct{})
		h.userConns[c.userID] = set
	}
	set[c] = struct{}{}
}

// joinReview admits c to the PR's co-review presence set, per §4.7's
// prReview(repoKey) set and §3's Presence/ReviewSession model.
func (h *Hub) joinReview(c *Connection, repositoryID string, prNumber int) {
	key := reviewKey(repositoryID, prNumber)
	h.mu.Lock()
	set, ok := h.prReview[key]
	if !ok {
		set = make(map[*Connection]struct{})
		h.prReview[key] = set
	}
	set[c] = struct{}{}
	c.reviewKey = key
	h.presence[key+"#"+c.userID] = &domain.Presence{
		RepositoryID: repositoryID,
		PRNumber:     prNumber,
		UserID:       c.userID,
		Status:       domain.PresenceViewing,
		LastActivity: time.Now(),
	}
	h.mu.Unlock()

	h.broadcastPresence(key)
}

func (h *Hub) broadcastPresence(key string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastPresenceLocked(key)
}

// broadcastPresenceLocked requires h.mu to already be held (read or write).
func (h *Hub) broadcastPresenceLocked(key string) {
	var snapshot []*domain.Presence
	for k, p := range h.presence {
		if len(k) > len(key) && k[:len(key)] == key {
			clone := *p
			snapshot = append(snapshot, &clone)
		}
	}
	conns := h.prReview[key]
	msg := Message{Type: TypePresenceUpdate, Data: snapshot, Timestamp: time.Now()}
	for c := range conns {
		c.deliver(msg)
	}
}

// allConnections snapshots the live connection set for the heartbeat sweep.
func (h *Hub) allConnections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) updatePresenceStatus(c *Connection, status domain.PresenceStatus, file string, line int) {
	if c.reviewKey == "" {
		return
	}
	h.mu.Lock()
	p, ok := h.presence[c.reviewKey+"#"+c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	p.Status = status
	if file != "" {
		p.CurrentFile = file
	}
	p.CurrentLine = line
	p.LastActivity = time.Now()
	h.mu.Unlock()
	h.broadcastPresence(c.reviewKey)
}
