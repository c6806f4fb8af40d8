package portal

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/joinme/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// How often the association is re-read between manager transitions
	statusRefresh = 2 * time.Second
)

// handleStatusWS pushes the status document on connect, on every manager
// transition, and whenever a periodic re-read finds it changed.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Status websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	s.wg.Add(1)
	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		s.wg.Done()
		logging.Debug("Status websocket closed", zap.String("remote_addr", remoteAddr))
	}()

	updates, unsubscribe := s.connector.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	last := s.Status()
	if err := writeStatus(conn, last); err != nil {
		return
	}

	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-closed:
			return

		case _, ok := <-updates:
			if !ok {
				return
			}
			last = s.Status()
			if err := writeStatus(conn, last); err != nil {
				return
			}

		case <-refresh.C:
			current := s.Status()
			if current == last {
				continue
			}
			last = current
			if err := writeStatus(conn, last); err != nil {
				return
			}

		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeStatus(conn *websocket.Conn, st Status) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(st); err != nil {
		logging.Debug("Status websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// readUntilClosed discards client messages and handles pongs; it closes
// closed when the peer goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
