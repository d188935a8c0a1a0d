package transport

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

// writeTimeout bounds a single frame write to a client.
const writeTimeout = 10 * time.Second

// sendBuffer is the per-connection outbound queue. A client that cannot
// drain it loses frames rather than stalling broadcasts for the channel.
const sendBuffer = 64

// Conn is one live session connection.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	log    *logger.Logger
	userID string

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConn(ws *websocket.Conn, userID string, log *logger.Logger) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		log:    log,
		userID: userID,
		rooms:  make(map[string]struct{}),
	}
}

// Send queues a frame for delivery. It never blocks the caller.
func (c *Conn) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warnw("dropping frame for slow session client", "user_id", c.userID)
	}
}

// writePump drains the send queue onto the socket until ctx is cancelled.
func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debugw("session write failed", "user_id", c.userID, "error", err)
				return
			}
		}
	}
}

func (c *Conn) track(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

func (c *Conn) untrack(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Conn) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
