package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
	"github.com/mcdev12/votingwar/go/internal/timers"
)

const reconnectTimerKey = "reconnect"

// State is the lifecycle state of the push channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Sink receives snapshots and connectivity changes from the push channel.
type Sink interface {
	ApplyAuthoritative(snap models.Snapshot) bool
	MarkOnline()
	MarkOffline(message string)
}

// ConnectionConfig holds configuration for the push channel.
type ConnectionConfig struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	OfflineMessage   string

	// MaxMessageSize caps a single push. Zero means no cap. A frame over a
	// non-zero cap fails the read and is handled as a transport error.
	MaxMessageSize int64
}

// DefaultConnectionConfig returns the default push channel configuration.
// ReconnectDelay matches the default poll interval.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		URL:              "ws://localhost:3000/api/ws",
		ReconnectDelay:   2 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     time.Second,
		OfflineMessage:   "server offline",
	}
}

// ConnectionManager owns the single push channel to the server. After every
// close it schedules exactly one reconnect attempt, forever, at a fixed delay.
type ConnectionManager struct {
	config ConnectionConfig
	dialer *websocket.Dialer
	sink   Sink
	timers *timers.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	stopped bool
	wg      sync.WaitGroup
}

// NewConnectionManager creates a manager in the disconnected state. The
// reconnect timer is scheduled on registry.
func NewConnectionManager(config ConnectionConfig, sink Sink, registry *timers.Registry) *ConnectionManager {
	if registry == nil {
		registry = timers.NewRegistry(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		sink:   sink,
		timers: registry,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (cm *ConnectionManager) State() State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// Connect opens the push channel. It does nothing unless the manager is
// disconnected. A failed attempt schedules the next one.
func (cm *ConnectionManager) Connect() {
	cm.mu.Lock()
	if cm.stopped || cm.state != StateDisconnected {
		cm.mu.Unlock()
		return
	}
	cm.state = StateConnecting
	cm.mu.Unlock()

	log.Debug().Str("url", cm.config.URL).Msg("connecting push channel")

	conn, _, err := cm.dialer.DialContext(cm.ctx, cm.config.URL, nil)
	if err != nil {
		cm.handleClose(nil, err)
		return
	}

	cm.mu.Lock()
	if cm.stopped {
		cm.mu.Unlock()
		conn.Close()
		return
	}
	cm.state = StateConnected
	cm.conn = conn
	cm.wg.Add(1)
	cm.mu.Unlock()

	log.Info().Str("url", cm.config.URL).Msg("push channel connected")
	cm.sink.MarkOnline()

	go cm.readPump(conn)
}

// Stop closes the channel and cancels any pending reconnect. A stopped
// manager never connects again.
func (cm *ConnectionManager) Stop() {
	cm.mu.Lock()
	if cm.stopped {
		cm.mu.Unlock()
		return
	}
	cm.stopped = true
	conn := cm.conn
	cm.mu.Unlock()

	cm.timers.Cancel(reconnectTimerKey)
	cm.cancel()

	if conn != nil {
		deadline := time.Now().Add(cm.config.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	cm.wg.Wait()

	log.Info().Msg("push channel stopped")
}

// readPump applies every inbound snapshot until the channel closes.
// The client never writes application messages on this channel.
func (cm *ConnectionManager) readPump(conn *websocket.Conn) {
	defer cm.wg.Done()

	if cm.config.MaxMessageSize > 0 {
		conn.SetReadLimit(cm.config.MaxMessageSize)
	}
	cm.extendReadDeadline(conn)
	conn.SetPingHandler(func(appData string) error {
		cm.extendReadDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(cm.config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			cm.handleClose(conn, err)
			return
		}
		cm.extendReadDeadline(conn)

		snap, err := models.ParseSnapshot(message)
		if err != nil {
			log.Debug().Err(err).Msg("discarding malformed push message")
			continue
		}
		cm.sink.ApplyAuthoritative(snap)
	}
}

func (cm *ConnectionManager) extendReadDeadline(conn *websocket.Conn) {
	if cm.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}

// handleClose moves to disconnected and schedules a reconnect. A clean close
// frame from the server leaves connectivity alone; anything else is an error.
func (cm *ConnectionManager) handleClose(conn *websocket.Conn, err error) {
	cm.mu.Lock()
	if conn != nil && cm.conn == conn {
		cm.conn = nil
	}
	cm.state = StateDisconnected
	stopped := cm.stopped
	cm.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if stopped {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		log.Info().Int("code", closeErr.Code).Msg("push channel closed by server")
	} else {
		log.Warn().Err(err).Msg("push channel error")
		cm.sink.MarkOffline(cm.config.OfflineMessage)
	}

	cm.timers.Schedule(reconnectTimerKey, cm.config.ReconnectDelay, cm.Connect)
	log.Debug().Dur("delay", cm.config.ReconnectDelay).Msg("reconnect scheduled")
}
