package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bills/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Client message types.
const (
	WatchType    = "watch"
	WatchingType = "watching"
)

// ClientMessage is sent by a screen to choose which days it cares about.
// An empty Dates list means every day.
type ClientMessage struct {
	Type  string      `json:"type"`
	Dates []core.Date `json:"dates"`
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
	dates  map[core.Date]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and registers the connection. Initial
// watched days can be passed as repeated ?date= parameters.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var dates []core.Date
	for _, raw := range r.URL.Query()["date"] {
		d, err := core.ParseDate(raw)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		dates = append(dates, d)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger().WarnContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	c.watch(dates)

	if !h.join(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) watch(dates []core.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(dates) == 0 {
		c.dates = nil
		return
	}
	c.dates = make(map[core.Date]bool, len(dates))
	for _, d := range dates {
		c.dates[d] = true
	}
}

func (c *Client) watchesAny(dates []core.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dates == nil {
		return true
	}
	for _, d := range dates {
		if c.dates[d] {
			return true
		}
	}
	return false
}

// trySend queues a frame without blocking. It reports false when the
// buffer is full or the client is gone.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger().Warn("Websocket read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != WatchType {
			logger().Debug("Ignoring websocket message", "error", err)
			continue
		}

		c.watch(msg.Dates)
		ack, _ := json.Marshal(ClientMessage{Type: WatchingType, Dates: msg.Dates})
		c.trySend(ack)
	}
}

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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
