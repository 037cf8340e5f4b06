package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/eventbus"
)

// Hub fans events from the in-process bus out to websocket clients
// connected to /ws/plays.
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	events     chan eventbus.Event
	done       chan struct{}
	once       sync.Once
	logger     *zap.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		events:     make(chan eventbus.Event, 256),
		done:       make(chan struct{}),
		logger:     logger.Named("ws"),
	}
}

func (h *Hub) run(bus *eventbus.Bus) {
	if bus != nil {
		bus.Subscribe(eventbus.TypePlayRecorded, h.events)
	}
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case evt := <-h.events:
			data, err := json.Marshal(wsMessage{Type: evt.Type, Payload: evt.Data})
			if err != nil {
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *Hub) stop() {
	h.once.Do(func() { close(h.done) })
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handlePlaysWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		// Hub already stopped; nobody will ever read the register channel.
		conn.Close()
		return
	}

	go func() {
		defer conn.Close()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}()

	// Drain reads so pings and close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case s.hub.unregister <- client:
	case <-s.hub.done:
	}
}
