package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// Hub fans lifecycle events out to connected websocket clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The platform gateway terminates auth before traffic gets here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With().Str("component", "notify_hub").Logger(),
	}
}

// Run consumes the queue until ctx is cancelled, broadcasting every
// event to all connected clients.
func (h *Hub) Run(ctx context.Context, events <-chan Event) {
	h.logger.Info().Msg("starting notification hub")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("shutting down notification hub")
			h.closeAll()
			return
		case event, ok := <-events:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(event)
		}
	}
}

// Handler upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		h.mu.Lock()
		h.clients[conn] = struct{}{}
		h.mu.Unlock()

		h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

		// Drain reads to notice the close handshake.
		go func() {
			defer h.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug().Err(err).Msg("dropping unresponsive client")
			h.drop(conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if present {
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
