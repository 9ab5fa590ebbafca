package match

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// StateSource provides the state pushed to viewers.
type StateSource interface {
	State(ctx context.Context) (models.MatchSnapshot, error)
}

// Hub manages viewer websocket connections and pushes the match state to
// all of them.
type Hub struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig
	source   StateSource

	broadcastCh chan []byte
}

// Connection is one viewer.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	ConnectedAt time.Time
}

type HubConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	BroadcastInterval time.Duration
	Clock             clockwork.Clock
	CheckOrigin       func(r *http.Request) bool
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    1024,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    64,
		BroadcastInterval: 500 * time.Millisecond,
		Clock:             clockwork.NewRealClock(),
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewHub(source StateSource, config HubConfig) *Hub {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Hub{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		source:      source,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start delivers broadcasts and, while anyone is connected, pushes the full
// state every BroadcastInterval. It returns when ctx is done.
func (h *Hub) Start(ctx context.Context) {
	ticker := h.config.Clock.NewTicker(h.config.BroadcastInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", h.config.BroadcastInterval).Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.deliver(message)
		case <-ticker.Chan():
			if h.Count() == 0 {
				continue
			}
			state, err := h.source.State(ctx)
			if err != nil {
				log.Error().Err(err).Msg("error in broadcast loop")
				continue
			}
			h.Broadcast(state)
		}
	}
}

// ServeWS upgrades a viewer and sends it the current state right away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBufferSize),
		Hub:         h,
		ConnectedAt: time.Now(),
	}

	if state, err := h.source.State(r.Context()); err == nil {
		if data, err := json.Marshal(state); err == nil {
			c.Send <- data
		}
	} else {
		log.Error().Err(err).Msg("failed to load initial state for viewer")
	}

	h.register(c)

	go c.writePump()
	go c.readPump()
}

// Broadcast queues state for every viewer. It never blocks.
func (h *Hub) Broadcast(state models.MatchSnapshot) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal state for broadcast")
		return
	}
	select {
	case h.broadcastCh <- data:
	default:
		log.Warn().Msg("broadcast channel full, dropping message")
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.connections[c] = true
	count := len(h.connections)
	h.mu.Unlock()

	log.Info().Str("connection_id", c.ID).Int("active", count).Msg("WS connected")
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c)
	close(c.Send)
	count := len(h.connections)
	h.mu.Unlock()

	log.Info().Str("connection_id", c.ID).Int("active", count).Msg("WS disconnected")
}

func (h *Hub) deliver(message []byte) {
	// Send is only closed under the write lock, so sending under the read
	// lock never hits a closed channel.
	var slow []*Connection
	h.mu.RLock()
	for c := range h.connections {
		select {
		case c.Send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
		c.Conn.Close()
	}
	if len(slow) > 0 {
		log.Debug().Int("dropped", len(slow)).Msg("dropped slow WS connections")
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.unregister(c)
	}
}

// writePump sends queued messages and pings to the viewer.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write to viewer")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to ping viewer")
				return
			}
		}
	}
}

// readPump keeps the connection alive. Viewers send nothing meaningful.
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("WS connection error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	}
}
