package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/curaflow/internal/events"
)

const (
	// recent events replayed to a new connection
	recentEventsCount = 50

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsEventsHandler streams bus events to a WebSocket client, starting with
// the most recent ones. With ?run_id= only that run's events are sent.
func (s *Server) wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	runID := r.URL.Query().Get("run_id")
	bus := s.svc.Bus()
	sub := bus.Subscribe()
	defer func() {
		bus.Unsubscribe(sub)
		conn.Close()
	}()

	write := func(e events.Event) bool {
		if runID != "" && e.RunID() != runID {
			return true
		}
		data, err := json.Marshal(e)
		if err != nil {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("ws write failed", "err", err)
			return false
		}
		return true
	}

	for _, e := range bus.Recent(recentEventsCount) {
		if !write(e) {
			return
		}
	}

	// The reader handles pongs and notices the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if !write(e) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
