// Package pipe defines stream-oriented connections between peers.  A
// Transport produces Conns; each Conn carries any number of independent,
// bidirectional Streams.
package pipe

import (
	"context"
	"net"
	"time"
)

// Transport can listen for and dial connections to other peers.
type Transport interface {
	Listen(context.Context, net.Addr) (Listener, error)
	Dial(context.Context, net.Addr) (Conn, error)
}

// Listener produces inbound connections
type Listener interface {
	Addr() net.Addr
	Close() error
	Accept(context.Context) (Conn, error)
}

// Conn is a logical connection between two peers.  Its context expires when
// the connection is closed by either side.
type Conn interface {
	Context() context.Context
	Stream() Streamer
	Endpoint() Edge
	Close() error
}

// Streamer opens and accepts streams over a Conn
type Streamer interface {
	Accept() (Stream, error)
	Open() (Stream, error)
}

// Edge identifies the two ends of a connection
type Edge interface {
	Local() net.Addr
	Remote() net.Addr
}

// Stream is a bidirectional byte stream multiplexed onto a Conn.  Its context
// expires when the stream or its Conn is closed.
type Stream interface {
	StreamID() uint32
	Context() context.Context
	Endpoint() Edge
	Close() error
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Dialer is the client half of a Transport
type Dialer interface {
	Dial(context.Context, net.Addr) (Conn, error)
}
