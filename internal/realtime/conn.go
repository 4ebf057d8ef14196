package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prreview/orchestrator/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Connection wraps one accepted WebSocket, per the teacher's plugin.go
// per-session WebSocket handling, generalized from a single Mattermost
// session to an arbitrary authenticated client.
type Connection struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	send chan Message

	userID        string
	authenticated bool
	reviewKey     string
	sessionID     string

	missedPongs int32

	writeMu sync.Mutex
}

// Serve accepts ws, registers it with hub, and blocks until the connection
// closes, running the read and write pumps concurrently. Callers invoke
// this from the HTTP upgrade handler, one goroutine per connection.
func Serve(hub *Hub, ws *websocket.Conn) {
	c := &Connection{
		id:   uuid.NewString(),
		ws:   ws,
		hub:  hub,
		send: make(chan Message, sendBuffer),
	}
	hub.register(c)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		atomic.StoreInt32(&c.missedPongs, 0)
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go c.writePump(done)
	c.deliver(Message{Type: TypeConnected, Timestamp: time.Now()})

	c.readPump()
	close(done)
	hub.unregister(c)
	ws.Close()
}

// deliver enqueues msg for this connection's write pump. Non-blocking: a
// slow or stalled client drops frames rather than backing up the hub, since
// §4.7 explicitly allows eventual delivery via the REST summary endpoint.
func (c *Connection) deliver(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Connection) writePump(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteJSON(msg)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ping sends a control-frame ping, used by the Hub's heartbeat sweep.
// Returns false once two consecutive pings have gone unanswered, per §4.7
// "two missed replies terminate".
func (c *Connection) ping() bool {
	if atomic.AddInt32(&c.missedPongs, 1) > 2 {
		return false
	}
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return err == nil
}

func (c *Connection) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.deliver(Message{Type: TypeError, Data: "malformed frame", Timestamp: time.Now()})
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame inboundFrame) {
	now := time.Now()

	if frame.Type == TypeAuthenticate {
		userID, err := c.hub.auth.Authenticate(frame.Token)
		if err != nil {
			c.deliver(Message{Type: TypeError, Data: "authentication failed", Timestamp: now})
			return
		}
		c.userID = userID
		c.authenticated = true
		c.deliver(Message{Type: TypeAuthenticated, Data: map[string]any{"userId": userID}, Timestamp: now})
		return
	}

	if frame.Type == TypePing {
		c.deliver(Message{Type: TypePong, Timestamp: now})
		return
	}

	// Every other operation requires authentication first (§4.7 "A
	// connection is authenticated before any subscribe operation").
	if !c.authenticated {
		c.deliver(Message{Type: TypeError, Data: "not authenticated", Timestamp: now})
		return
	}

	switch frame.Type {
	case TypeSubscribe:
		c.hub.subscribeRepos(c, frame.RepositoryIDs)
		c.deliver(Message{Type: TypeSubscribed, Data: frame.RepositoryIDs, Timestamp: now})

	case TypeJoinReview:
		c.hub.joinReview(c, frame.RepositoryID, frame.PRNumber)
		c.deliver(Message{Type: TypeReviewJoined, Data: map[string]any{
			"repositoryId": frame.RepositoryID, "prNumber": frame.PRNumber,
		}, Timestamp: now})

	case "cursor_move":
		c.hub.cursorMove(c, frame.File, frame.Line, frame.Column)

	case TypeNavigateTo:
		c.hub.navigateTo(c, frame.File, frame.Line)

	case TypeUpdateStatus:
		c.hub.updatePresenceStatus(c, domain.PresenceStatus(frame.Status), frame.File, frame.Line)

	case TypeStartSession:
		session := c.hub.startSession(c, frame.RepositoryID, frame.PRNumber)
		c.deliver(Message{Type: TypeSessionStarted, Data: session, Timestamp: now})

	case TypeJoinSession:
		session, ok := c.hub.joinSession(c, frame.SessionID)
		if !ok {
			c.deliver(Message{Type: TypeError, Data: "session not found", Timestamp: now})
			return
		}
		c.deliver(Message{Type: TypeSessionJoined, Data: session, Timestamp: now})
		c.hub.broadcastSessionUpdate(session)

	case TypeToggleSync:
		session, ok := c.hub.toggleSync(c, frame.Enabled)
		if !ok {
			c.deliver(Message{Type: TypeError, Data: "only the session host may toggle sync", Timestamp: now})
			return
		}
		c.hub.broadcastSessionUpdate(session)

	default:
		c.deliver(Message{Type: TypeError, Data: "unrecognized frame type", Timestamp: now})
	}
}
