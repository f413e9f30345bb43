package tcp

import (
	"net"
	"time"

	"github.com/lthibault/utpwerks/pkg/transport/generic"
)

// Option for TCP transport
type Option func(*Transport) (prev Option)

// OptListener replaces the configuration used to open listeners
func OptListener(lc *net.ListenConfig) Option {
	return func(t *Transport) (prev Option) {
		prev = OptListener(t.lc)
		t.lc = lc
		generic.OptListener(lc)(&t.Transport)
		return
	}
}

// OptDialer replaces the dialer
func OptDialer(d *net.Dialer) Option {
	return func(t *Transport) (prev Option) {
		prev = OptDialer(t.d)
		t.d = d
		generic.OptDialer(d)(&t.Transport)
		return
	}
}

// OptKeepAlive sets the keep-alive period on both the listener and the
// dialer.  A negative period disables keep-alives.
func OptKeepAlive(d time.Duration) Option {
	return func(t *Transport) (prev Option) {
		prev = OptKeepAlive(t.d.KeepAlive)
		t.lc.KeepAlive = d
		t.d.KeepAlive = d
		return
	}
}

// OptGeneric sets an option on the underlying generic transport
func OptGeneric(opt generic.Option) Option {
	return func(t *Transport) Option {
		return OptGeneric(opt(&t.Transport))
	}
}
