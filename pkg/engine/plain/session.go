package plain

import (
	"net"
	"time"

	"github.com/jpillora/backoff"
	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/pkg/errors"
)

type sessionState uint8

const (
	stateIdle sessionState = iota
	stateSynSent
	stateConnected
	stateFinSent
	stateDead
)

type outPacket struct {
	typ     packetType
	seq     uint32
	payload []byte
}

type session struct {
	e    *Engine
	key  string
	send engine.SendFunc
	peer net.Addr
	cb   engine.Callbacks

	recvID, sendID uint16
	state          sessionState
	closing        bool
	eof            bool

	seqNext uint32 // next sequence number to assign
	ackNext uint32 // next sequence number expected from the peer
	peerWnd int
	intent  int // bytes advertised through Write and not yet pulled
	blocked bool

	unacked  []*outPacket
	inflight int

	rto      backoff.Backoff
	rtoCur   time.Duration
	lastSend time.Time
	retries  int
	persist  bool // peer answered but had no room for unacked data

	advertised int
}

func newSession(e *Engine, send engine.SendFunc, peer net.Addr) *session {
	s := &session{
		e:       e,
		send:    send,
		peer:    peer,
		peerWnd: e.recvWindow,
		seqNext: 1,
		rto: backoff.Backoff{
			Min:    e.minRTO,
			Max:    e.maxRTO,
			Factor: 2,
		},
	}
	s.resetRTO()
	return s
}

func (s *session) SetCallbacks(cb engine.Callbacks) { s.cb = cb }
func (s *session) PeerAddr() net.Addr               { return s.peer }

// Unacked returns the number of packets, including SYN and FIN, awaiting
// acknowledgement.
func (s *session) Unacked() int { return len(s.unacked) }

func (s *session) Connect() error {
	switch {
	case s.closing, s.state == stateDead:
		return engine.ErrClosed
	case s.state != stateIdle:
		return nil
	}

	s.state = stateSynSent
	s.lastSend = s.e.now()
	s.transmit(&outPacket{typ: typeSyn, seq: s.seqNext})
	return nil
}

func (s *session) Write(n int) bool {
	if s.closing || s.state == stateDead {
		return false
	}

	s.intent = n
	s.flush(false)
	s.blocked = s.intent > 0
	return !s.blocked
}

func (s *session) Close() error {
	if s.closing || s.state == stateDead {
		return nil
	}

	s.cb = nil
	s.closing = true
	s.intent = 0

	if s.state == stateConnected {
		s.state = stateFinSent
		s.transmit(&outPacket{typ: typeFin, seq: s.seqNext})
		return nil
	}

	s.state = stateDead
	s.e.remove(s)
	return nil
}

func (s *session) recv(h header, payload []byte) {
	if s.state == stateDead {
		return
	}

	s.overhead(false, headerSize, h.typ.overhead())

	switch h.typ {
	case typeSyn:
		s.sendState()

	case typeState:
		if s.state == stateSynSent {
			s.ackNext = h.seq
			s.state = stateConnected
			s.processAck(h)
			if s.cb != nil {
				s.cb.OnStateChange(engine.StateConnect)
			}
		} else {
			s.processAck(h)
		}

	case typeData, typeFin:
		if s.state == stateSynSent {
			return
		}
		s.processAck(h)
		s.deliver(h, payload)
	}

	s.flush(false)
	s.checkWritable()
}

func (s *session) processAck(h header) {
	s.peerWnd = int(h.wnd)

	n := 0
	for n < len(s.unacked) && seqLess(s.unacked[n].seq, h.ack) {
		s.inflight -= len(s.unacked[n].payload)
		n++
	}

	if n > 0 {
		s.unacked = s.unacked[n:]
		s.retries = 0
		s.persist = false
		s.resetRTO()
		s.lastSend = s.e.now()
		return
	}

	if len(s.unacked) > 0 && s.peerWnd < len(s.unacked[0].payload) {
		s.persist = true
	}
}

func (s *session) deliver(h header, payload []byte) {
	if h.seq != s.ackNext {
		// duplicate or out of order; re-ack what we have
		s.sendState()
		return
	}

	if h.typ == typeData && s.cb != nil {
		if err := s.cb.OnRead(payload); err != nil {
			s.e.log.WithError(err).
				WithField("peer", s.peer).
				WithField("bytes", len(payload)).
				Debug("receiver refused payload, withholding ack")
			s.sendState()
			return
		}
	}

	s.ackNext++
	s.sendState()

	if h.typ == typeFin && !s.eof {
		s.eof = true
		if s.cb != nil {
			s.cb.OnStateChange(engine.StateEOF)
		}
	}
}

// flush pulls advertised bytes from the application while the peer's window
// and the send window allow.  A forced flush sends one packet regardless of
// the window, probing a peer that advertised zero credit.
func (s *session) flush(force bool) {
	for s.state == stateConnected && s.cb != nil && s.intent > 0 {
		budget := s.peerWnd
		if s.e.sendWindow < budget {
			budget = s.e.sendWindow
		}
		budget -= s.inflight

		if force {
			// probe with what the peer last offered, at least one byte
			if budget = s.peerWnd; budget < 1 {
				budget = 1
			}
			force = false
		}

		n := s.intent
		if n > s.e.payloadSize {
			n = s.e.payloadSize
		}
		if n > budget {
			n = budget
		}
		if n <= 0 {
			return
		}

		p := make([]byte, n)
		s.cb.OnWrite(p)
		s.intent -= n
		s.transmit(&outPacket{typ: typeData, seq: s.seqNext, payload: p})
	}
}

func (s *session) checkWritable() {
	if s.blocked && s.intent == 0 && s.cb != nil {
		s.blocked = false
		s.cb.OnStateChange(engine.StateWritable)
	}
}

func (s *session) transmit(op *outPacket) {
	if len(s.unacked) == 0 {
		s.lastSend = s.e.now()
	}

	s.unacked = append(s.unacked, op)
	s.inflight += len(op.payload)
	s.seqNext++
	s.sendPacket(op, false)
}

func (s *session) sendPacket(op *outPacket, retransmit bool) {
	h := header{
		typ: op.typ,
		id:  s.sendID,
		seq: op.seq,
		ack: s.ackNext,
		wnd: s.window(),
	}
	if op.typ == typeSyn {
		h.id = s.recvID
	}

	s.write(h, op.payload)
	if retransmit && len(op.payload) > 0 {
		s.overhead(true, len(op.payload), engine.OverheadRetransmit)
	}
}

func (s *session) sendState() {
	s.write(header{
		typ: typeState,
		id:  s.sendID,
		seq: s.seqNext,
		ack: s.ackNext,
		wnd: s.window(),
	}, nil)
}

func (s *session) write(h header, payload []byte) {
	s.advertised = int(h.wnd)
	if err := s.send(h.marshal(payload), s.peer); err != nil {
		s.e.log.WithError(err).
			WithField("peer", s.peer).
			WithField("type", h.typ).
			Debug("send failed")
	}
	s.overhead(true, headerSize, h.typ.overhead())
}

// capacity of the receive side: the engine's window, or less if the
// application bounds its buffer.
func (s *session) capacity() int {
	c := s.e.recvWindow
	if b, ok := s.cb.(engine.Bounded); ok {
		if n := b.RBCapacity(); n > 0 && n < c {
			c = n
		}
	}
	return c
}

func (s *session) window() uint32 {
	w := s.capacity()
	if s.cb != nil {
		w -= s.cb.RBSize()
	}
	if w < 0 {
		w = 0
	}
	return uint32(w)
}

func (s *session) overhead(send bool, n int, kind engine.OverheadKind) {
	if s.cb != nil {
		s.cb.OnOverhead(engine.Overhead{Send: send, Bytes: n, Kind: kind})
	}
}

func (s *session) resetRTO() {
	s.rto.Reset()
	s.rtoCur = s.rto.Duration()
}

func (s *session) tick(now time.Time) {
	if s.state == stateDead {
		s.e.remove(s)
		return
	}

	if s.closing && len(s.unacked) == 0 {
		s.state = stateDead
		s.e.remove(s)
		return
	}

	if now.Sub(s.lastSend) < s.rtoCur {
		s.updateWindow()
		return
	}

	switch {
	case len(s.unacked) > 0:
		// a peer that answers without room is alive; keep probing
		switch {
		case s.persist:
			s.persist = false
		case s.retries >= s.e.maxRetries:
			s.fail(errors.Wrapf(engine.ErrTimeout, "%d retransmissions to %s", s.retries, s.peer))
			return
		default:
			s.retries++
		}

		s.rtoCur = s.rto.Duration()
		s.lastSend = now
		for _, op := range s.unacked {
			s.sendPacket(op, true)
		}

	case s.state == stateConnected && s.intent > 0:
		// zero window and nothing in flight
		s.lastSend = now
		s.flush(true)
	}

	s.updateWindow()
}

// updateWindow tells the peer about credit that reopened after it was
// exhausted, since the peer will not send until it hears about it.
func (s *session) updateWindow() {
	if s.state != stateConnected || s.cb == nil {
		return
	}

	threshold := s.e.payloadSize
	if c := s.capacity(); c < threshold {
		threshold = c
	}

	if s.advertised < threshold && int(s.window()) >= threshold {
		s.sendState()
	}
}

func (s *session) fail(err error) {
	s.e.log.WithError(err).WithField("peer", s.peer).Debug("session failed")

	cb := s.cb
	s.state = stateDead
	s.unacked = nil
	s.inflight = 0
	s.e.remove(s)

	if cb != nil {
		cb.OnError(err)
		if !s.eof {
			s.eof = true
			cb.OnStateChange(engine.StateEOF)
		}
	}
}
