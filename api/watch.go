package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sessioncore/auth"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Watch handles GET /session/watch. It upgrades to a websocket and streams
// one JSON-encoded snapshot update per state transition, starting with the
// current snapshot so late subscribers are never behind. The connection
// closes when the client goes away or the core shuts down.
func (a *API) Watch(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	updates, cancel := a.core.Subscribe()
	defer cancel()

	ws.SetWriteDeadline(time.Now().Add(watchWriteWait))
	if err := ws.WriteJSON(auth.Update{Snapshot: a.core.Snapshot()}); err != nil {
		return
	}

	ws.SetReadDeadline(time.Now().Add(watchPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(watchPongWait))
		return nil
	})

	// Drain the reader so close frames and pongs are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingPeriod := (watchPongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := ws.WriteJSON(u); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(watchWriteWait)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
