package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// MessageHandler receives what clients send on their sockets.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn *Connection, msg ClientMessage)
	HandleDisconnect(ctx context.Context, conn *Connection)
}

// ConnectionManager manages WebSocket connections and the session rooms they join
type ConnectionManager struct {
	// every live connection, joined or not
	connections map[*Connection]bool
	// session id → connections that joined that session
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	baseCtx context.Context
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	// guarded by Manager.mu
	playerID   string
	joined     bool
	registered bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		rooms:       make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		baseCtx: context.Background(),
	}
}

// SetHandler installs the handler for inbound messages. Call before serving.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start runs until ctx is cancelled and then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	cm.mu.Lock()
	cm.baseCtx = ctx
	cm.mu.Unlock()
	log.Info().Msg("connection manager started")

	<-ctx.Done()
	log.Info().Msg("connection manager shutting down")
	cm.CloseAll()
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, playerID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(sessionID, playerID, conn)
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) newConnection(sessionID, playerID string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		playerID:    playerID,
		ConnectedAt: time.Now(),
	}
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn.registered = true
	cm.connections[conn] = true
}

// unregisterConnection removes a connection from the manager and its room.
// It is safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !conn.registered {
		return
	}
	conn.registered = false
	delete(cm.connections, conn)
	cm.leaveRoomLocked(conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.playerID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// PlayerID returns the player the connection acts for.
func (c *Connection) PlayerID() string {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	return c.playerID
}

// Joined reports whether the connection is in its session room.
func (c *Connection) Joined() bool {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	return c.joined
}

// JoinRoom puts the connection in its session room and binds it to playerID.
func (cm *ConnectionManager) JoinRoom(conn *Connection, playerID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !conn.registered {
		return
	}
	conn.playerID = playerID
	conn.joined = true
	if cm.rooms[conn.SessionID] == nil {
		cm.rooms[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.rooms[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("room_size", len(cm.rooms[conn.SessionID])).
		Msg("connection joined room")
}

// PlayerInRoom reports whether playerID still has a joined connection in the
// session room other than except.
func (cm *ConnectionManager) PlayerInRoom(sessionID, playerID string, except *Connection) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for conn := range cm.rooms[sessionID] {
		if conn != except && conn.playerID == playerID {
			return true
		}
	}
	return false
}

// LeaveRoom takes the connection out of its session room but keeps it open.
func (cm *ConnectionManager) LeaveRoom(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn.joined = false
	cm.leaveRoomLocked(conn)
}

// leaveRoomLocked keeps conn.joined as is so a closed connection still
// remembers it was in the room.
func (cm *ConnectionManager) leaveRoomLocked(conn *Connection) {
	room, ok := cm.rooms[conn.SessionID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(cm.rooms, conn.SessionID)
	}
}

// SendTo queues an event for one connection.
func (cm *ConnectionManager) SendTo(conn *Connection, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	cm.deliver([]*Connection{conn}, data)
}

// BroadcastToSession queues an event for every connection in the session
// room except the one given, which may be nil.
func (cm *ConnectionManager) BroadcastToSession(sessionID string, event *Event, except *Connection) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.rooms[sessionID]))
	for conn := range cm.rooms[sessionID] {
		if conn != except {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	cm.deliver(targets, data)

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("session_id", sessionID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// deliver never blocks. A connection whose queue is full is closed instead of
// silently missing events.
func (cm *ConnectionManager) deliver(targets []*Connection, data []byte) {
	var slow []*Connection

	cm.mu.RLock()
	for _, conn := range targets {
		if !conn.registered {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("session_id", conn.SessionID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.close()
	}
}

// CloseAll closes every open connection.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	all := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		all = append(all, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.close()
	}
}

// ConnectionStats summarises active connections
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.rooms))
	for sessionID, room := range cm.rooms {
		counts[sessionID] = len(room)
	}
	return ConnectionStats{
		TotalConnections:   len(cm.connections),
		ActiveSessions:     len(cm.rooms),
		SessionConnections: counts,
	}
}

func (cm *ConnectionManager) context() context.Context {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.baseCtx
}

func (c *Connection) close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.Manager.handler != nil {
			c.Manager.handler.HandleDisconnect(c.Manager.context(), c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one client frame and hands it to the handler
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		msg = ClientMessage{}
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("received malformed client message")
	}
	if c.Manager.handler != nil {
		c.Manager.handler.HandleMessage(c.Manager.context(), c, msg)
	}
}
