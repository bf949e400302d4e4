// Package traceserver streams a VM's --trace instruction lines to any
// number of connected websocket clients, for a `debug --serve` attached
// viewer instead of a terminal. A trimmed, one-way version of a websocket
// broadcast server: upgrade, track connections, fan out every line.
package traceserver

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server accepts websocket connections on a single endpoint and rebroadcasts
// every Broadcast call to all of them.
type Server struct {
	sessionID uuid.UUID
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func New() *Server {
	return &Server{
		sessionID: uuid.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) SessionID() string { return s.sessionID.String() }

// ListenAndServe blocks, serving the upgrade handler at addr. Callers run
// it in its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	go s.drainClient(conn)
}

// drainClient discards anything the client sends; it exists only to notice
// the connection closing so Broadcast stops writing to it.
func (s *Server) drainClient(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
			return
		}
	}
}

// Broadcast sends line to every connected client. Matches vm.WithTraceHook's
// func(string) shape so it can be passed straight through as the hook.
func (s *Server) Broadcast(line string) {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			c.Close()
		}
	}
}
