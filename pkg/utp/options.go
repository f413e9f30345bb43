package utp

import (
	"io/ioutil"
	"net"

	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/sirupsen/logrus"
)

// Option for Endpoint
type Option func(*Endpoint) (prev Option)

// OptEngine sets the transport engine.  Defaults to DefaultEngine.
func OptEngine(eng engine.Engine) Option {
	return func(e *Endpoint) (prev Option) {
		prev = OptEngine(e.eng)
		e.eng = eng
		return
	}
}

// OptHooks sets the hooks notified of writability changes, transport errors
// and overhead statistics.  Accepted endpoints inherit their listener's hooks.
func OptHooks(h Hooks) Option {
	return func(e *Endpoint) (prev Option) {
		prev = OptHooks(e.hooks)
		e.hooks = h
		return
	}
}

// OptLogger sets the logger
func OptLogger(l logrus.FieldLogger) Option {
	return func(e *Endpoint) (prev Option) {
		prev = OptLogger(e.log)
		e.log = l
		return
	}
}

// OptInboundLimit bounds the number of received bytes buffered for the
// application.  The engine sizes its advertised window to the free space and
// withholds acknowledgement of anything that does not fit, until the
// application drains the buffer.  Zero means unbounded.
func OptInboundLimit(n int) Option {
	return func(e *Endpoint) (prev Option) {
		prev = OptInboundLimit(e.inLimit)
		e.inLimit = n
		return
	}
}

// OptLocalAddr sets the address the shared descriptor is bound to.  Nil, the
// default, binds the wildcard address on an ephemeral port.
func OptLocalAddr(a net.Addr) Option {
	return func(e *Endpoint) (prev Option) {
		prev = OptLocalAddr(e.local)
		e.local = a
		return
	}
}

func nullLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}
