package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/prreview/orchestrator/internal/realtime"
)

// upgrader mirrors the teacher's lack of a same-origin requirement for a
// plugin served from its own host; here the frontend is a separate origin
// by design, so CheckOrigin always allows -- auth happens via the
// {type:"authenticate"} frame once the socket is open (realtime.Hub),
// not at the HTTP upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *handlers) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.d.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	realtime.Serve(h.d.Hub, ws)
}
