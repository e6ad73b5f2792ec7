package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8 * 1024 * 1024 // one base64 capture of about a minute

	// Outbound buffer per client; transcript updates arrive once per fragment.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionService is the part of the session manager the hub needs
type SessionService interface {
	Attach(ctx context.Context, id string, pub usecase.Publisher) (*usecase.Conversation, func(), error)
	Dispatch(ctx context.Context, id string, cmd usecase.Command) error
}

// Hub maintains the set of connected browsers, one per session.
type Hub struct {
	// Registered clients by session id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessions  SessionService
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionService, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sessions:   sessions,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.sessionID]; ok {
				// a reconnecting browser replaces its stale connection
				previous.close()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
		}
	}
}

// ConnectedClients returns the number of attached browsers
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one outbound frame
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub. It
// publishes conversation updates of its session to the browser.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	sessionID string
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool

	detach func()
}

var _ usecase.Publisher = (*Client)(nil)

// HandleWebSocketWithAuth upgrades a request whose token was already
// validated and binds the connection to sessionID.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, sessionID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, sessionID, logger)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	conv, detach, err := hub.sessions.Attach(ctx, sessionID, client)
	if err != nil {
		logger.Warn("Failed to attach session", zap.String("sessionID", sessionID), zap.Error(err))
		client.sendMessage(CreateErrorMessage(domain.ErrorCode(err), err.Error(), ""))
		client.close()
		go client.writePump()
		return nil
	}
	client.detach = detach

	select {
	case hub.register <- client:
	case <-hub.done:
		detach()
		conn.Close()
		return nil
	}

	snap := conv.Snapshot()
	client.sendMessage(CreateHelloMessage(snap))
	client.Publish(usecase.Update{Kind: usecase.UpdateTranscript, Turns: snap.Turns})

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string, logger *zap.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBuffer),
		sessionID: sessionID,
		logger:    logger.With(zap.String("sessionID", sessionID)),
	}
}

// Publish implements usecase.Publisher
func (c *Client) Publish(u usecase.Update) {
	c.sendMessage(EncodeUpdate(u))
}

// sendMessage queues msg without blocking the orchestrator
func (c *Client) sendMessage(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}

// close stops further sends; writePump then closes the connection
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps messages from the websocket connection to the conversation.
func (c *Client) readPump() {
	defer func() {
		if c.detach != nil {
			c.detach()
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.close()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryCapture(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the client to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage validates a text frame and routes it to the conversation
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendMessage(CreateErrorMessage("invalid_message", err.Error(), ""))
		return
	}

	if ping, ok := msg.(*PingMessage); ok {
		c.sendMessage(CreatePongMessage(ping.Data))
		return
	}

	cmd, ok := ToCommand(msg)
	if !ok {
		return
	}
	c.dispatch(cmd)
}

// processBinaryCapture treats a binary frame as a complete WAV recording
func (c *Client) processBinaryCapture(data []byte) {
	c.logger.Info("Received binary capture", zap.Int("size", len(data)))
	c.dispatch(captureCommand(data, defaultSampleRate, defaultEncoding))
}

func (c *Client) dispatch(cmd usecase.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.hub.sessions.Dispatch(ctx, c.sessionID, cmd); err != nil {
		c.logger.Warn("Command rejected", zap.String("command", string(cmd.Kind)), zap.Error(err))
		c.sendMessage(CreateErrorMessage(domain.ErrorCode(err), err.Error(), ""))
	}
}
