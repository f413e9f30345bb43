package utp

import (
	"io"
	"net"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "utp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var errTimeout net.Error = timeoutError{}

// Conn is a net.Conn over an endpoint driven by a Loop.
type Conn struct {
	l  *Loop
	ep *Endpoint
	g  *group

	err                  error
	rdeadline, wdeadline time.Time
	destroyed            bool
}

// Read blocks until data is available, the peer closes the stream, or the
// read deadline passes.  It returns io.EOF once the peer has closed and all
// received data has been read.
func (c *Conn) Read(b []byte) (int, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	if len(b) == 0 {
		return 0, nil
	}

	for {
		if c.destroyed {
			return 0, ErrClosed
		}

		if n, err := c.ep.Recv(b); n > 0 || err != nil {
			return n, err
		}

		switch {
		case c.err != nil:
			return 0, c.err
		case c.ep.Closed():
			return 0, io.EOF
		case expired(c.rdeadline):
			return 0, errTimeout
		}

		if err := c.l.wait(); err != nil {
			return 0, err
		}
	}
}

// Write blocks until all of b has been buffered for transmission.
func (c *Conn) Write(b []byte) (n int, err error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	for len(b) > 0 {
		switch {
		case c.destroyed:
			return n, ErrClosed
		case c.err != nil:
			return n, c.err
		case expired(c.wdeadline):
			return n, errTimeout
		}

		var sent int
		if sent, err = c.ep.Send(b); err != nil {
			return n, err
		}

		n += sent
		if b = b[sent:]; len(b) == 0 {
			break
		}

		if err = c.l.wait(); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Close waits up to the loop's linger duration for buffered data to be
// acknowledged, then closes the stream.
func (c *Conn) Close() error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	if c.destroyed {
		return ErrClosed
	}

	if c.err == nil {
		c.linger(time.Now().Add(c.l.linger))
	}

	c.destroy()
	return nil
}

// linger until the outbound buffer drains, then until the closing handshake
// is acknowledged.  A peer that already closed is not waited on.
func (c *Conn) linger(deadline time.Time) {
	for !c.ep.Flushed() && c.err == nil && !expired(deadline) {
		if c.l.wait() != nil {
			return
		}
	}

	if c.ep.Closed() || c.err != nil || c.ep.Shutdown() != nil {
		return
	}

	for !c.ep.Flushed() && !expired(deadline) {
		if c.l.wait() != nil {
			return
		}
	}
}

// destroy the endpoint and drop the conn's reference to its group.  Caller
// holds the loop's lock.
func (c *Conn) destroy() {
	c.destroyed = true
	delete(c.l.conns, c.ep)

	if c.ep != c.g.root {
		c.ep.Close()
	}

	c.l.release(c.g)
}

// LocalAddr of the shared descriptor
func (c *Conn) LocalAddr() net.Addr {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	if a, err := c.ep.LocalAddr(); err == nil {
		return Addr{UDPAddr: a.(*net.UDPAddr)}
	}

	return nil
}

// RemoteAddr of the peer
func (c *Conn) RemoteAddr() net.Addr {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	if a, ok := c.ep.PeerAddr().(*net.UDPAddr); ok {
		return Addr{UDPAddr: a}
	}

	return nil
}

// SetDeadline sets the read and write deadlines.  Deadlines are checked once
// per loop iteration.
func (c *Conn) SetDeadline(t time.Time) error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	c.rdeadline, c.wdeadline = t, t
	c.l.cond.Broadcast()
	return nil
}

// SetReadDeadline sets the read deadline
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	c.rdeadline = t
	c.l.cond.Broadcast()
	return nil
}

// SetWriteDeadline sets the write deadline
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()

	c.wdeadline = t
	c.l.cond.Broadcast()
	return nil
}

func expired(t time.Time) bool { return !t.IsZero() && !time.Now().Before(t) }
