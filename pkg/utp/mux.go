package utp

import (
	"net"

	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/lthibault/utpwerks/pkg/socket"
	"github.com/pkg/errors"
)

// HandleReadable reads datagrams off the shared descriptor until it would
// block, routing each one through the engine.
func (e *Endpoint) HandleReadable() error {
	if e.sock == nil {
		return ErrNotBound
	}

	if e.rbuf == nil {
		e.rbuf = make([]byte, maxDatagram)
	}

	for e.sock != nil {
		n, from, err := e.sock.RecvFrom(e.rbuf)
		if errors.Cause(err) == socket.ErrWouldBlock {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "handle readable")
		}

		e.demux(e.rbuf[:n], from)
	}

	return nil
}

func (e *Endpoint) demux(p []byte, from net.Addr) {
	if !e.eng.IsIncoming(e.onIncoming, e.sendTo, p, from) {
		e.log.WithField("from", from).
			WithField("bytes", len(p)).
			Debug("dropped datagram")
	}
}

func (e *Endpoint) onIncoming(s engine.Session) {
	if !e.listening {
		e.log.WithField("from", s.PeerAddr()).Debug("refused inbound session")
		s.Close()
		return
	}

	e.pending.push(e.adopt(s))
	e.log.WithField("from", s.PeerAddr()).
		WithField("pending", e.pending.Len()).
		Debug("queued inbound session")
}
