package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/logging"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(token string) (string, error) { return token, nil }

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	bus, err := NewBus("", logging.New("test"))
	require.NoError(t, err)
	return NewHub(bus, fakeAuthenticator{}, logging.New("test"))
}

func newTestConn(userID string) *Connection {
	return &Connection{id: userID, userID: userID, authenticated: true, send: make(chan Message, 8)}
}

func TestOnlyHostMayToggleSync(t *testing.T) {
	h := newTestHub(t)
	host := newTestConn("host")
	guest := newTestConn("guest")

	session := h.startSession(host, "o/r", 1)
	h.joinSession(guest, session.ID)

	_, ok := h.toggleSync(guest, true)
	assert.False(t, ok, "a non-host must not be able to toggle sync")

	_, ok = h.toggleSync(host, true)
	assert.True(t, ok)
}

func TestNavigateToRequiresHostAndSyncEnabled(t *testing.T) {
	h := newTestHub(t)
	host := newTestConn("host")
	guest := newTestConn("guest")
	session := h.startSession(host, "o/r", 1)
	h.joinSession(guest, session.ID)

	assert.False(t, h.navigateTo(host, "a.go", 10), "sync must be enabled first")

	_, ok := h.toggleSync(host, true)
	require.True(t, ok)

	assert.True(t, h.navigateTo(host, "a.go", 10))
	assert.False(t, h.navigateTo(guest, "b.go", 20), "a non-host may never broadcast navigation_sync")
}

func drain(c *Connection) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestCursorMoveDroppedWhenNotJoined(t *testing.T) {
	h := newTestHub(t)
	a := newTestConn("a")
	b := newTestConn("b")
	h.joinReview(a, "o/r", 7)
	h.joinReview(b, "o/r", 7)
	drain(a)
	drain(b)

	h.cursorMove(a, "x.go", 1, 2)

	select {
	case msg := <-b.send:
		assert.Equal(t, TypeCursorMove, msg.Type)
	default:
		t.Fatal("expected b to receive a's cursor_move")
	}

	drain(a)
	notJoined := newTestConn("c")
	h.cursorMove(notJoined, "x.go", 1, 2)
	select {
	case <-a.send:
		t.Fatal("an unjoined sender's cursor_move must not be delivered")
	default:
	}
}

func TestJoinReviewBroadcastsPresence(t *testing.T) {
	h := newTestHub(t)
	a := newTestConn("a")
	h.joinReview(a, "o/r", 3)

	select {
	case msg := <-a.send:
		assert.Equal(t, TypePresenceUpdate, msg.Type)
	default:
		t.Fatal("expected a presence_update on join")
	}
}
