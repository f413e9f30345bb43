// Package tcp carries pipe streams over TCP connections.  It shares the
// generic yamux multiplexer with the utp transport, which makes it the
// reference the utp transport is measured against.
package tcp

import (
	"context"
	"net"
	"time"

	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/lthibault/utpwerks/pkg/transport/generic"
	"github.com/pkg/errors"
)

// DefaultKeepAlive is the keep-alive period of dialed and accepted connections.
const DefaultKeepAlive = 15 * time.Second

// Transport over TCP
type Transport struct {
	generic.Transport
	lc *net.ListenConfig
	d  *net.Dialer
}

func validate(a net.Addr) error {
	switch a.Network() {
	case "tcp", "tcp4", "tcp6":
		return nil
	}

	return errors.Errorf("tcp: %s address %s", a.Network(), a)
}

// Listen on a TCP address
func (t Transport) Listen(c context.Context, a net.Addr) (pipe.Listener, error) {
	if err := validate(a); err != nil {
		return nil, err
	}

	return t.Transport.Listen(c, a)
}

// Dial a TCP address
func (t Transport) Dial(c context.Context, a net.Addr) (pipe.Conn, error) {
	if err := validate(a); err != nil {
		return nil, err
	}

	return t.Transport.Dial(c, a)
}

// New TCP transport.  Both directions use DefaultKeepAlive unless
// overridden.
func New(opt ...Option) (t Transport) {
	t.Transport = generic.New()

	OptListener(&net.ListenConfig{KeepAlive: DefaultKeepAlive})(&t)
	OptDialer(&net.Dialer{KeepAlive: DefaultKeepAlive})(&t)

	for _, fn := range opt {
		fn(&t)
	}

	return t
}
