package generic

import (
	"context"
	"net"

	pipe "github.com/lthibault/utpwerks/pkg"
)

// NetListener produces standard library listeners.  Listeners that also
// implement AcceptContext(context.Context) (net.Conn, error) let pipe.Listener
// honour the context passed to Accept.
type NetListener interface {
	Listen(c context.Context, network, address string) (net.Listener, error)
}

// NetDialer produces standard library connections
type NetDialer interface {
	DialContext(c context.Context, network, address string) (net.Conn, error)
}

type serverMuxAdapter interface {
	AdaptServer(net.Conn) (pipe.Conn, error)
}

// MuxAdapter turns a net.Conn into a pipe.Conn that carries many streams
type MuxAdapter interface {
	AdaptServer(net.Conn) (pipe.Conn, error)
	AdaptClient(net.Conn) (pipe.Conn, error)
}

// Option for Transport
type Option func(*Transport) (prev Option)

// OptListener sets the source of inbound net.Conns
func OptListener(l NetListener) Option {
	return func(t *Transport) (prev Option) {
		prev = OptListener(t.NetListener)
		t.NetListener = l
		return
	}
}

// OptDialer sets the source of outbound net.Conns
func OptDialer(d NetDialer) Option {
	return func(t *Transport) (prev Option) {
		prev = OptDialer(t.NetDialer)
		t.NetDialer = d
		return
	}
}

// OptMuxAdapter sets the stream multiplexer.  Defaults to MuxConfig{}.
func OptMuxAdapter(x MuxAdapter) Option {
	return func(t *Transport) (prev Option) {
		prev = OptMuxAdapter(t.MuxAdapter)
		t.MuxAdapter = x
		return
	}
}
