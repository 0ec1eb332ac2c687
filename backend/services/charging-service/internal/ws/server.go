package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Server upgrades HTTP requests to live session feeds.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeSession streams the events of sessionID until the client goes away. initial, when not
// nil, is written first so the client starts from the current state.
func (s *Server) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string, initial []byte) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := s.hub.Subscribe(sessionID)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	go s.readPump(conn, cancel)

	s.logger.Info("session feed connected", zap.String("session_id", sessionID))
	if initial != nil {
		if err := s.write(conn, websocket.TextMessage, initial); err != nil {
			return
		}
	}
	s.writePump(ctx, conn, sub)
	s.logger.Info("session feed closed", zap.String("session_id", sessionID))
}

// readPump discards client messages and watches for disconnects.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
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

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = s.write(conn, websocket.CloseMessage, []byte{})
				return
			}
			if err := s.write(conn, websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, messageType int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteMessage(messageType, data)
}
