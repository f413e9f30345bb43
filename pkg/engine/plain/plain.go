// Package plain is a small reliable-stream engine for the socket adapter.
//
// It implements the engine contract with a go-back-N protocol: in-order
// delivery, cumulative acknowledgements, retransmission on timeout and
// receiver-advertised flow control.  It has no congestion control and no
// security.  An Engine is not safe for concurrent use; drive it from one
// goroutine.
package plain

import (
	"io/ioutil"
	"math/rand"
	"net"
	"time"

	radix "github.com/armon/go-radix"
	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Defaults
const (
	DefaultMinRTO      = 200 * time.Millisecond
	DefaultMaxRTO      = 4 * time.Second
	DefaultMaxRetries  = 8
	DefaultRecvWindow  = 1 << 20
	DefaultSendWindow  = 1 << 18
	DefaultPayloadSize = 1200
)

// Engine routes datagrams to sessions and drives their timers.
type Engine struct {
	sessions *radix.Tree
	rand     *rand.Rand
	log      logrus.FieldLogger
	now      func() time.Time

	minRTO, maxRTO time.Duration
	maxRetries     int
	recvWindow     int
	sendWindow     int
	payloadSize    int
}

// New Engine
func New(opt ...Option) *Engine {
	e := &Engine{
		sessions:    radix.New(),
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
		minRTO:      DefaultMinRTO,
		maxRTO:      DefaultMaxRTO,
		maxRetries:  DefaultMaxRetries,
		recvWindow:  DefaultRecvWindow,
		sendWindow:  DefaultSendWindow,
		payloadSize: DefaultPayloadSize,
	}

	l := logrus.New()
	l.Out = ioutil.Discard
	e.log = l

	for _, o := range opt {
		o(e)
	}

	return e
}

// Create a session that will connect to the given address.
func (e *Engine) Create(send engine.SendFunc, to net.Addr) (engine.Session, error) {
	if send == nil || to == nil {
		return nil, errors.New("plain: send function and address are required")
	}

	s := newSession(e, send, to)
	for {
		s.recvID = uint16(e.rand.Uint32())
		s.key = sessionKey(to, s.recvID)
		if _, taken := e.sessions.Get(s.key); !taken {
			break
		}
	}
	s.sendID = s.recvID + 1

	e.sessions.Insert(s.key, s)
	return s, nil
}

// IsIncoming routes the datagram to its session.  SYN packets for unknown
// sessions create a new session which is handed to onIncoming.
func (e *Engine) IsIncoming(onIncoming engine.IncomingFunc, send engine.SendFunc, p []byte, from net.Addr) bool {
	h, payload, err := parse(p)
	if err != nil {
		e.log.WithError(err).WithField("peer", from).Debug("dropped malformed datagram")
		return false
	}

	if h.typ != typeSyn {
		s, ok := e.lookup(from, h.id)
		if ok {
			s.recv(h, payload)
		}
		return ok
	}

	if s, ok := e.lookup(from, h.id+1); ok {
		s.recv(h, payload) // duplicate SYN
		return true
	}

	if onIncoming == nil || send == nil {
		return false
	}

	s := e.accept(send, from, h)
	onIncoming(s)
	if s.cb != nil {
		s.cb.OnStateChange(engine.StateWritable)
	}

	return true
}

// CheckTimeouts retransmits unacknowledged packets, sends window updates and
// reaps finished sessions.
func (e *Engine) CheckTimeouts() {
	var ss []*session
	e.sessions.Walk(func(_ string, v interface{}) bool {
		ss = append(ss, v.(*session))
		return false
	})

	now := e.now()
	for _, s := range ss {
		s.tick(now)
	}
}

// Len returns the number of sessions the engine tracks, including closed
// sessions that are still flushing.
func (e *Engine) Len() int { return e.sessions.Len() }

// SessionsFor returns the number of sessions with the given peer.
func (e *Engine) SessionsFor(peer net.Addr) (n int) {
	e.sessions.WalkPrefix(peer.String()+"|", func(string, interface{}) bool {
		n++
		return false
	})
	return
}

func (e *Engine) lookup(peer net.Addr, id uint16) (*session, bool) {
	v, ok := e.sessions.Get(sessionKey(peer, id))
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (e *Engine) accept(send engine.SendFunc, from net.Addr, syn header) *session {
	s := newSession(e, send, from)
	s.recvID = syn.id + 1
	s.sendID = syn.id
	s.key = sessionKey(from, s.recvID)
	s.seqNext = e.rand.Uint32()
	s.ackNext = syn.seq + 1
	s.peerWnd = int(syn.wnd)
	s.state = stateConnected
	s.overhead(false, headerSize, engine.OverheadConnect)

	e.sessions.Insert(s.key, s)
	s.sendState()

	e.log.WithField("peer", from).WithField("id", s.recvID).Debug("accepted session")
	return s
}

func (e *Engine) remove(s *session) {
	e.sessions.Delete(s.key)
}
