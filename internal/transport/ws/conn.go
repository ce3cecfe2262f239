package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/collab-service/internal/room"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// all data frames go through one write pump
type wsConn struct {
	id  string
	raw *websocket.Conn

	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	open         atomic.Bool
	writeTimeout time.Duration
}

var _ room.Conn = (*wsConn)(nil)

func newWsConn(raw *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *wsConn {
	c := &wsConn{
		id:           uuid.NewString(),
		raw:          raw,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Open() bool { return c.open.Load() }

func (c *wsConn) Send(frame []byte) error {
	if !c.open.Load() {
		return room.ErrConnClosed
	}
	select {
	case <-c.done:
		return room.ErrConnClosed
	case c.send <- frame:
		return nil
	default:
		return room.ErrBackpressure
	}
}

// only the first call acts
func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)

		deadline := time.Now().Add(c.writeTimeout)
		_ = c.raw.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = c.raw.Close()
	})
	return err
}

// terminate drops the socket without a close handshake.
func (c *wsConn) terminate() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.raw.Close()
	})
}

func (c *wsConn) ping() error {
	return c.raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.raw.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.terminate()
				return
			}
		}
	}
}
