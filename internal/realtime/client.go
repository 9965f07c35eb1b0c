package realtime

import (
	"sync"

	"github.com/sakashimaa/go-grocery/pkg/auth"
	"go.uber.org/zap"
)

type Client struct {
	id       string
	identity auth.Identity
	conn     Conn
	send     chan Message
	done     chan struct{}
	exited   chan struct{}
	once     sync.Once
	channels []string
	hub      *Hub
}

func (c *Client) ID() string              { return c.id }
func (c *Client) Identity() auth.Identity { return c.identity }

// Done is closed once the client has been shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Wait blocks until the write loop has stopped touching the connection.
func (c *Client) Wait() { <-c.exited }

// Send queues a message for this connection only.
func (c *Client) Send(event string, data any) bool {
	return c.enqueue(Message{Event: event, Data: data})
}

func (c *Client) enqueue(msg Message) bool {
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

func (c *Client) writePump() {
	defer close(c.exited)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("Write to connection failed", zap.String("client_id", c.id), zap.Error(err))
				c.hub.Unregister(c)
				return
			}
		}
	}
}

func (c *Client) shutdown() bool {
	closed := false
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		closed = true
	})
	return closed
}
