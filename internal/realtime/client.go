package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/livepoll/pkg/response"
)

const (
	// EventAck carries the response to a request-style event.
	EventAck = "ack"
	// EventConnected tells a new connection its participant id.
	EventConnected = "connected"

	writeWait = 10 * time.Second
)

// WSMessage is the WebSocket message envelope. A client that wants a response to
// a request-style event sets Ack; the server echoes it on the "ack" reply.
type WSMessage struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TransportConfig tunes the WebSocket pumps.
type TransportConfig struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongWait        time.Duration
	CheckOrigin     func(r *http.Request) bool
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 65536
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return c
}

// Client is a single WebSocket connection. Its ID doubles as the participant id.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan WSMessage
	// done is closed when the read side stops; queued messages are then discarded.
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan WSMessage, buffer),
		done: make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the client is gone or
// its buffer is full.
func (c *Client) enqueue(msg WSMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ServeWs upgrades the request and runs the connection until it closes.
func ServeWs(hub *Hub, dispatcher *Dispatcher, cfg TransportConfig, logger *zap.Logger) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cfg.CheckOrigin,
	}
	return func(c *gin.Context) {
		if !websocket.IsWebSocketUpgrade(c.Request) {
			response.BadRequest(c, "websocket upgrade required")
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(uuid.New().String(), conn, cfg.SendBuffer)
		logger.Info("client connected", zap.String("client_id", client.ID), zap.String("remote", c.ClientIP()))
		hub.SendToClient(client, EventConnected, map[string]string{"id": client.ID})

		go client.writePump(cfg, logger)
		client.readPump(dispatcher, cfg, logger)
	}
}

func (c *Client) readPump(dispatcher *Dispatcher, cfg TransportConfig, logger *zap.Logger) {
	defer func() {
		dispatcher.Disconnect(c)
		c.close()
		_ = c.conn.Close()
		logger.Info("client disconnected", zap.String("client_id", c.ID))
	}()

	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			logger.Debug("malformed message", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}

		reply := dispatcher.Handle(c, msg.Event, msg.Data)
		if msg.Ack == "" || reply == nil {
			continue
		}
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error("marshal reply", zap.String("event", msg.Event), zap.Error(err))
			continue
		}
		c.enqueue(WSMessage{Event: EventAck, Ack: msg.Ack, Data: data})
	}
}

func (c *Client) writePump(cfg TransportConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
