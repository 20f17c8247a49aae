package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 128
)

// Connection wraps a websocket and coordinates outbound writes via a bounded
// buffered channel. One Connection exists per accepted socket; a reconnect is
// a brand new Connection with a new id. Safe for concurrent use.
type Connection struct {
	id     string
	userID string

	ws       *websocket.Conn
	send     chan []byte
	once     sync.Once
	closed   chan struct{}
	dropped  atomic.Int64
	degraded atomic.Bool
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

var _ relay.Subscriber = (*Connection)(nil)

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Start launches the write loop. Call exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery without blocking. When the buffer is
// full the event is dropped for this consumer only and the connection is
// marked degraded; the client recovers missed messages through the catch-up
// read, not through redelivery.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return relay.ErrConnectionGone
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return relay.ErrConnectionGone
	default:
		c.degraded.Store(true)
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Str("connection", c.id).Str("user", c.userID).Int64("dropped", n).Msg("consumer send buffer full, dropping event")
		}
		return relay.ErrBufferFull
	}
}

// Degraded reports whether this connection has dropped at least one event.
func (c *Connection) Degraded() bool { return c.degraded.Load() }

// Dropped returns the number of events dropped due to a full buffer.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }

// Close terminates the connection and stops the write loop. Idempotent.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
