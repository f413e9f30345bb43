package utp

import (
	"context"
	"net"
)

// Listener is a net.Listener over a listening endpoint driven by a Loop.
// Closing it stops new sessions; the descriptor stays open until every
// accepted Conn is closed.
type Listener struct {
	l      *Loop
	g      *group
	addr   Addr
	closed bool
}

// Addr the listener is bound to
func (ln *Listener) Addr() net.Addr { return ln.addr }

// Accept satisfies net.Listener
func (ln *Listener) Accept() (net.Conn, error) {
	return ln.AcceptContext(context.Background())
}

// AcceptContext blocks until an inbound session is pending, the listener is
// closed, or the context expires.
func (ln *Listener) AcceptContext(c context.Context) (net.Conn, error) {
	ln.l.mu.Lock()
	defer ln.l.mu.Unlock()

	for {
		if ln.closed {
			return nil, ErrClosed
		}

		if ep, _ := ln.g.root.Accept(); ep != nil {
			ln.g.refs++
			return ln.l.newConn(ep, ln.g), nil
		}

		if err := c.Err(); err != nil {
			return nil, err
		}

		if err := ln.l.wait(); err != nil {
			return nil, err
		}
	}
}

// Close stops accepting sessions and destroys those not yet accepted.
func (ln *Listener) Close() error {
	ln.l.mu.Lock()
	defer ln.l.mu.Unlock()

	if ln.closed {
		return ErrClosed
	}
	ln.closed = true

	root := ln.g.root
	root.listening = false
	for ep, _ := root.Accept(); ep != nil; ep, _ = root.Accept() {
		ep.Close()
	}

	ln.l.release(ln.g)
	ln.l.cond.Broadcast()
	return nil
}
