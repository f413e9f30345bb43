// Package utp is a pipe.Transport that multiplexes streams over reliable
// datagram sessions.
package utp

import (
	"context"
	"net"

	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/lthibault/utpwerks/pkg/transport/generic"
	core "github.com/lthibault/utpwerks/pkg/utp"
	"github.com/pkg/errors"
)

func checkNetwork(a net.Addr) (ok bool) {
	switch a.Network() {
	case "utp", "utp4", "utp6":
		ok = true
	}

	return
}

// Transport over utp
type Transport struct {
	generic.Transport
	loop *core.Loop
}

// Listen utp
func (t Transport) Listen(c context.Context, a net.Addr) (pipe.Listener, error) {
	if !checkNetwork(a) {
		return nil, errors.Errorf("utp: invalid network %s", a.Network())
	}

	return t.Transport.Listen(c, a)
}

// Dial utp
func (t Transport) Dial(c context.Context, a net.Addr) (pipe.Conn, error) {
	if !checkNetwork(a) {
		return nil, errors.Errorf("utp: invalid network %s", a.Network())
	}

	return t.Transport.Dial(c, a)
}

// Loop driving the transport's sockets
func (t Transport) Loop() *core.Loop { return t.loop }

// Close the loop, and with it every listener and connection of the transport.
func (t Transport) Close() error { return t.loop.Close() }

// New utp Transport.  Unless OptLoop is given, the transport gets a Loop of
// its own.
func New(opt ...Option) (t Transport) {
	t.Transport = generic.New()
	OptLoop(core.NewLoop())(&t)

	for _, fn := range opt {
		fn(&t)
	}

	return
}
