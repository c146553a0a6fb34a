package ws

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huddleapp/huddle/backend/internal/ratelimit"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Options tunes per-connection behavior. Zero values fall back to the
// defaults below.
type Options struct {
	MaxMessageSize       int64
	MessageRate          float64
	MessageBurst         int
	ClockInterval        time.Duration
	DefaultTimerDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 1024 * 1024
	}
	if o.MessageRate == 0 {
		o.MessageRate = 100
	}
	if o.MessageBurst == 0 {
		o.MessageBurst = 200
	}
	if o.ClockInterval == 0 {
		o.ClockInterval = 5 * time.Second
	}
	if o.DefaultTimerDuration == 0 {
		o.DefaultTimerDuration = 15 * time.Minute
	}
	return o
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live connection's protocol handler. Its lifecycle is
// unjoined until the first accepted join, joined until the connection
// drops, then closed for good; a client that wants a different room
// reconnects.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	opts        Options
	rateLimiter *ratelimit.Limiter

	participantID string // owned by readPump
	joined        atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// ServeWs upgrades an HTTP request and starts the connection's pumps.
// The client stays unjoined until its first join message.
func ServeWs(hub *Hub, opts Options, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	opts = opts.withDefaults()
	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 512),
		opts:        opts,
		rateLimiter: ratelimit.NewLimiter(opts.MessageRate, opts.MessageBurst),
		done:        make(chan struct{}),
	}

	go client.writePump()
	go client.readPump()
}

// Send enqueues one outbound frame without blocking. False means the
// connection is closed or too far behind to keep.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		if c.joined.Load() {
			c.hub.Leave(c.participantID)
		}
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			log.Printf("Rate limit exceeded for participant %q", c.participantID)
			continue
		}

		msg, err := Decode(raw, c.opts.DefaultTimerDuration)
		if err != nil {
			// Malformed input is dropped; the connection survives.
			log.Printf("Dropping undecodable message: %v", err)
			continue
		}

		if !c.joined.Load() {
			// Only a join request means anything before joining.
			if msg.Kind != KindJoin {
				continue
			}
			pid, ok := c.hub.Join(msg.Room, c)
			if !ok {
				c.Send(encodeExit())
				continue
			}
			c.participantID = pid
			c.joined.Store(true)
			continue
		}

		if msg.Kind == KindJoin {
			// No transition back to unjoined; re-joins are ignored.
			continue
		}
		c.hub.Dispatch(c.participantID, c, msg)
	}
}

func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingPeriod)
	clockTicker := time.NewTicker(c.opts.ClockInterval)
	defer func() {
		pingTicker.Stop()
		clockTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-clockTicker.C:
			// Coarse clock sync for joined clients. The ticker dies
			// with the connection, never after it.
			if !c.joined.Load() {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, encodeGlobalTime(time.Now())); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
