package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server is the HTTP surface of one signal node: the WebSocket signaling
// endpoint and the health probe the balancer's monitor hits.
type Server struct {
	logger          *slog.Logger
	hub             *Hub
	tracker         *Tracker
	maxMessageBytes int
	upgrader        websocket.Upgrader
}

// NewServer wires the signaling endpoint to its hub and liveness tracker.
func NewServer(hub *Hub, tracker *Tracker, maxMessageBytes int, logger *slog.Logger) *Server {
	return &Server{
		logger:          logger,
		hub:             hub,
		tracker:         tracker,
		maxMessageBytes: maxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay does not authenticate clients; origin policy is
			// the deployment's concern.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the node's routes on the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"rooms":       s.hub.RoomCount(),
		"connections": s.tracker.ConnectionCount(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("client", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	client := newClient(conn, s.hub, s.tracker, s.maxMessageBytes, s.logger)
	s.tracker.Track(client)
	client.start()

	s.logger.Info("Client connected", slog.String("client", client.remoteAddr))
}
