package utp

import (
	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/pkg/errors"
)

var errReleased = errors.New("utp: endpoint released")

// bridge translates engine callbacks into operations on one endpoint.  It
// holds a registry handle rather than the endpoint itself, so events that
// arrive after the endpoint is released are dropped.
type bridge struct {
	reg *registry
	h   handle
}

var (
	_ engine.Callbacks = bridge{}
	_ engine.Bounded   = bridge{}
)

func (b bridge) OnRead(p []byte) error {
	e, ok := b.reg.resolve(b.h)
	if !ok {
		return errReleased
	}

	if err := e.in.Append(p); err != nil {
		e.log.WithError(err).
			WithField("bytes", len(p)).
			WithField("buffered", e.in.Len()).
			Debug("inbound buffer full")
		return err
	}

	return nil
}

func (b bridge) OnWrite(p []byte) {
	e, ok := b.reg.resolve(b.h)
	if !ok {
		return
	}

	if n := e.out.ConsumeFront(p); n < len(p) {
		e.log.WithField("requested", len(p)).
			WithField("available", n).
			Warn("engine requested more bytes than were advertised")
	}
}

func (b bridge) RBSize() int {
	e, ok := b.reg.resolve(b.h)
	if !ok {
		return 0
	}

	return e.in.Len()
}

// RBCapacity lets the engine size its advertised window to the inbound limit.
func (b bridge) RBCapacity() int {
	e, ok := b.reg.resolve(b.h)
	if !ok {
		return 0
	}

	return e.in.Limit()
}

func (b bridge) OnStateChange(s engine.State) {
	if e, ok := b.reg.resolve(b.h); ok {
		e.onState(s)
	}
}

func (b bridge) OnError(err error) {
	if e, ok := b.reg.resolve(b.h); ok {
		e.log.WithError(err).Debug("transport error")
		e.hooks.Error(e, err)
	}
}

func (b bridge) OnOverhead(o engine.Overhead) {
	if e, ok := b.reg.resolve(b.h); ok {
		e.hooks.Overhead(e, o)
	}
}
