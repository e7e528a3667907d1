package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"room-broker/internal/broker"
	"room-broker/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

var errSendQueueFull = errors.New("send queue full")

// Conn wraps one websocket connection. Outbound messages go through a
// buffered channel so room broadcasts never block on a slow reader; a
// full buffer is treated as a dead connection.
type Conn struct {
	ws           *websocket.Conn
	send         chan protocol.Message
	dispatcher   *broker.Dispatcher
	pingInterval time.Duration

	mu       sync.Mutex
	alive    bool
	isClosed bool
	done     chan struct{}
}

func newConn(ws *websocket.Conn, pingInterval time.Duration) *Conn {
	return &Conn{
		ws:           ws,
		send:         make(chan protocol.Message, sendBuffer),
		pingInterval: pingInterval,
		alive:        true,
		done:         make(chan struct{}),
	}
}

// Send implements broker.Sender. It never blocks; an overflowing queue
// closes the connection and reports an error.
func (c *Conn) Send(msg protocol.Message) error {
	select {
	case c.send <- msg:
		return nil
	default:
		c.terminate()
		return errSendQueueFull
	}
}

// terminate force-closes the transport. The read loop notices and runs
// the normal disconnect path.
func (c *Conn) terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return
	}
	c.isClosed = true
	c.ws.Close()
}

// writePump drains the send queue and emits liveness pings. A connection
// that did not answer the previous ping is terminated before the next
// one is sent.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Printf("write to client %s failed: %v", c.dispatcher.ClientID(), err)
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			answered := c.alive
			c.alive = false
			c.mu.Unlock()
			if !answered {
				log.Printf("client %s missed a heartbeat, terminating", c.dispatcher.ClientID())
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound frames to the dispatcher serially. Any read
// error, including a missed-heartbeat termination, ends the connection
// and triggers the room-leave path.
func (c *Conn) readPump() {
	defer func() {
		close(c.done)
		c.terminate()
		c.dispatcher.HandleClose()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.alive = true
		c.mu.Unlock()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				log.Printf("read from client %s failed: %v", c.dispatcher.ClientID(), err)
			}
			return
		}
		c.dispatcher.HandleRaw(data)
	}
}
