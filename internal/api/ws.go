package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// wsEnvelope is the wire form of one event: the discriminator plus the event
// payload, flattened by marshalling the event itself under "data".
type wsEnvelope struct {
	Type string      `json:"type"`
	Data types.Event `json:"data"`
}

// wsClientBuffer bounds the per-client send queue; a client that cannot keep
// up is dropped rather than stalling the bus.
const wsClientBuffer = 64

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// wsHub fans bus events out to connected websocket clients. It subscribes at
// monitor priority so state mutations settle before clients observe them.
type wsHub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	unsubscribe func()
}

func newHub(bus *event.Bus) *wsHub {
	h := &wsHub{
		log:     logging.WithComponent("ws"),
		clients: map[*wsClient]struct{}{},
	}
	h.unsubscribe = bus.SubscribeAll(event.PriorityMonitor, h.broadcast)
	return h
}

func (h *wsHub) broadcast(ev types.Event) {
	payload, err := json.Marshal(wsEnvelope{Type: ev.EventType(), Data: ev})
	if err != nil {
		h.log.Error().Str("event", ev.EventType()).Err(err).Msg("event marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer: drop it, the writer goroutine tears down the conn.
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *wsHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *wsHub) close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.unsubscribe()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth is the session cookie; origin enforcement is left to a fronting
	// proxy the way the rest of the API assumes one.
	CheckOrigin: func(*http.Request) bool { return true },
}

// websocket upgrades the connection and streams every bus event to the
// client until either side goes away.
func (s *Server) websocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsClientBuffer)}
	if !s.hub.add(client) {
		conn.Close()
		return nil
	}
	s.log.Debug().Str("addr", c.RealIP()).Msg("websocket client connected")

	// Reader: discard inbound frames, detect disconnect.
	go func() {
		defer s.hub.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for payload := range client.send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.hub.remove(client)
			break
		}
	}
	conn.Close()
	return nil
}
