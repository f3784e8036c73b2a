package controllertest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// Time allowed to write a message to the peer
const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(SessionCookie); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Fake controller upgrade failed", zap.Error(err))
		return
	}

	s.wsMu.Lock()
	s.conns[conn] = struct{}{}
	s.wsMu.Unlock()

	logging.Debug("Fake controller WebSocket connected", zap.String("remote_addr", remoteHost(r.RemoteAddr)))

	// Drain client frames so close handshakes are processed.
	go func() {
		defer s.forget(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Push sends {"type": eventType} to every connected client.
func (s *Server) Push(eventType string) {
	data, _ := json.Marshal(map[string]any{"type": eventType})
	s.PushRaw(data)
}

// PushRaw sends a raw text frame to every connected client.
func (s *Server) PushRaw(data []byte) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn := range s.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Debug("Fake controller push failed", zap.Error(err))
		}
	}
}

// DropConnections closes every WebSocket client connection.
func (s *Server) DropConnections() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// Connections returns the number of connected WebSocket clients.
func (s *Server) Connections() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.conns)
}

func (s *Server) forget(conn *websocket.Conn) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		_ = conn.Close()
	}
}
