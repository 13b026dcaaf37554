package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"solar-clock/internal/metrics"
	"solar-clock/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://") {
			return strings.TrimPrefix(origin, "http://") == host
		}
		if strings.HasPrefix(origin, "https://") {
			return strings.TrimPrefix(origin, "https://") == host
		}
		return false
	},
}

// WSMessage is the envelope for everything sent over /ws.
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to every connected page.
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
	controller Controller
	log        *zap.SugaredLogger
}

func NewHub(controller Controller, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		controller: controller,
		log:        log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			metrics.Get().WebsocketClients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
			h.log.Debugf("Websocket client %s connected", client.id)
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
			metrics.Get().WebsocketClients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
			h.log.Debugf("Websocket client %s disconnected", client.id)
		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
			metrics.Get().WebsocketClients.Set(0)
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

// PublishFrame queues f for every client. Slow clients drop frames rather
// than block the ticker.
func (h *Hub) PublishFrame(f widget.Frame) error {
	msg, err := json.Marshal(WSMessage{Topic: "frame", Data: f})
	if err != nil {
		return err
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// Serve upgrades the request and streams frames until the client goes
// away. initial is sent first so a new page renders without waiting for
// the next tick.
func (h *Hub) Serve(c *gin.Context, initial widget.Frame) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debugf("Websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}
	if msg, err := json.Marshal(WSMessage{Topic: "frame", Data: initial}); err == nil {
		client.send <- msg
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(h)
}

type wsCommand struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func (c *wsClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		if err := h.apply(cmd); err != nil {
			h.log.Debugf("Ignoring websocket command %q from %s: %v", cmd.Action, c.id, err)
		}
	}
}

func (h *Hub) apply(cmd wsCommand) error {
	if h.controller == nil {
		return nil
	}
	switch cmd.Action {
	case "theme":
		t, err := widget.ParseTheme(cmd.Value)
		if err != nil {
			return err
		}
		return h.controller.SetTheme(t)
	case "mode":
		m, err := widget.ParseClockMode(cmd.Value)
		if err != nil {
			return err
		}
		return h.controller.SetClockMode(m)
	}
	return nil
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
