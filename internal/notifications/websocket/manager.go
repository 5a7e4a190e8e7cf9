package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"capital-creator/marketplace-backend/internal/auth"
	"capital-creator/marketplace-backend/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Manager handles WebSocket connections and routes messages to wallets
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	broadcast   chan notifications.Message
	stop        chan struct{}
	stopOnce    sync.Once
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	Wallet       string
	Conn         *websocket.Conn
	Send         chan notifications.Message
	ConnectedAt  time.Time
	LastActivity time.Time
	UserAgent    string
	IPAddress    string
	mu           sync.Mutex
}

// NewManager creates a new WebSocket manager. An empty allowedOrigins
// accepts any origin.
func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	m := &Manager{
		connections: make(map[string]*Connection),
		broadcast:   make(chan notifications.Message, 256),
		stop:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}

	go m.run()

	return m
}

// Handle upgrades an authenticated request. It must run behind
// auth.RequireWallet.
func (m *Manager) Handle(c *gin.Context) {
	wallet, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	if _, err := m.HandleConnection(c.Writer, c.Request, wallet); err != nil {
		m.logger.Warn("WebSocket upgrade failed", zap.String("wallet", wallet), zap.Error(err))
	}
}

// HandleConnection upgrades the request and registers the connection for wallet
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, wallet string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New().String(),
		Wallet:       wallet,
		Conn:         conn,
		Send:         make(chan notifications.Message, sendBuffer),
		ConnectedAt:  now,
		LastActivity: now,
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	m.logger.Info("Connection registered",
		zap.String("connection_id", connection.ID),
		zap.String("wallet", wallet))

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump consumes client frames until the socket closes
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg notifications.Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()

		m.handleMessage(conn, &msg)
	}
}

// writePump forwards queued messages and keeps the socket alive with pings
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers presence frames; clients have nothing else to say
func (m *Manager) handleMessage(conn *Connection, msg *notifications.Message) {
	if msg.Type != notifications.WSMessageTypePresence {
		m.logger.Debug("Ignoring client message", zap.String("type", msg.Type))
		return
	}

	data, _ := json.Marshal(map[string]string{"status": "connected", "connection_id": conn.ID})
	response := notifications.Message{
		Type:      notifications.WSMessageTypeStatus,
		Data:      data,
		Timestamp: time.Now(),
		Channel:   "private",
		Target:    conn.Wallet,
	}

	select {
	case conn.Send <- response:
	default:
	}
}

// run fans broadcast messages out to every connection
func (m *Manager) run() {
	for {
		select {
		case message := <-m.broadcast:
			m.mu.RLock()
			for _, conn := range m.connections {
				select {
				case conn.Send <- message:
				default:
				}
			}
			m.mu.RUnlock()

		case <-m.stop:
			return
		}
	}
}

func (m *Manager) unregister(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; !ok {
		return
	}
	delete(m.connections, conn.ID)
	close(conn.Send)
	m.logger.Info("Connection unregistered",
		zap.String("connection_id", conn.ID),
		zap.String("wallet", conn.Wallet))
}

// SendToUser queues message on every connection of wallet. It returns
// notifications.ErrNotConnected when the wallet has no open socket.
func (m *Manager) SendToUser(wallet string, message notifications.Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	message.Target = wallet
	found, queued := false, false
	for _, conn := range m.connections {
		if conn.Wallet != wallet {
			continue
		}
		found = true
		select {
		case conn.Send <- message:
			queued = true
		default:
		}
	}

	switch {
	case !found:
		return notifications.ErrNotConnected
	case !queued:
		return fmt.Errorf("user connection buffer full")
	}
	return nil
}

// Broadcast sends a message to all connected wallets
func (m *Manager) Broadcast(message notifications.Message) error {
	select {
	case m.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// ConnectionInfo represents connection information for monitoring
type ConnectionInfo struct {
	ConnectionID string    `json:"connection_id"`
	Wallet       string    `json:"wallet"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
}

// GetConnectionInfo returns information about all active connections
func (m *Manager) GetConnectionInfo() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		conn.mu.Lock()
		info = append(info, ConnectionInfo{
			ConnectionID: conn.ID,
			Wallet:       conn.Wallet,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
			UserAgent:    conn.UserAgent,
			IPAddress:    conn.IPAddress,
		})
		conn.mu.Unlock()
	}
	return info
}

// Close stops the manager and closes every connection
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	for id, conn := range m.connections {
		delete(m.connections, id)
		close(conn.Send)
	}
	m.mu.Unlock()
}
