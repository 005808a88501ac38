// Package hub holds the in-process fan-out state: the connection registry,
// the subscription index, and the broadcast router. All three are injected
// into every connection handler rather than living as package globals, so
// tests construct isolated instances per case.
package hub

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// ConnID identifies one live connection for the lifetime of the process.
type ConnID string

// DefaultQueueSize bounds a connection's outbound queue.
const DefaultQueueSize = 256

// Conn is one live, authenticated connection. The transport layer drains
// Outbound() in its write loop; the router enqueues into it without ever
// blocking.
//
// The send channel is never closed: broadcasts race with teardown, and a
// send on a closed channel would panic. Done() signals shutdown instead.
type Conn struct {
	id     ConnID
	userID string
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closeErr  error
}

// NewConn creates a connection owned by the given authenticated user.
// queueSize <= 0 uses DefaultQueueSize.
func NewConn(userID string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Conn{
		id:     ConnID(ulid.MustNew(ulid.Now(), rand.Reader).String()),
		userID: userID,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the process-unique connection id.
func (c *Conn) ID() ConnID {
	return c.id
}

// UserID returns the authenticated owner of this connection.
func (c *Conn) UserID() string {
	return c.userID
}

// Outbound is the FIFO queue the transport write loop drains.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// TrySend enqueues data without blocking. A full queue returns a
// Backpressure error; the router turns that into a forced disconnect.
func (c *Conn) TrySend(data []byte) error {
	select {
	case <-c.done:
		return cherr.New(cherr.Internal, "connection %s closed", c.id)
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return cherr.New(cherr.Backpressure, "outbound queue full for connection %s", c.id)
	}
}

// Close signals shutdown. Idempotent; both the read and write loop may
// observe closure and call this.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Fail records why the connection is being torn down, then closes it.
// Only the first reason sticks.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.mu.Unlock()
	c.Close()
}

// Err reports the teardown reason, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}
