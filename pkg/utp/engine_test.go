package utp

import (
	"net"

	"github.com/lthibault/utpwerks/pkg/engine"
)

// fakeEngine hands out scripted sessions.  Datagrams reading "syn" create an
// inbound session; anything else is rejected.
type fakeEngine struct {
	sessions []*fakeSession
	ticks    int
}

func (e *fakeEngine) Create(_ engine.SendFunc, to net.Addr) (engine.Session, error) {
	s := &fakeSession{peer: to, window: MaxBuffer}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEngine) IsIncoming(onIncoming engine.IncomingFunc, _ engine.SendFunc, p []byte, from net.Addr) bool {
	if string(p) != "syn" {
		return false
	}

	s := &fakeSession{peer: from, window: MaxBuffer}
	e.sessions = append(e.sessions, s)
	onIncoming(s)
	return true
}

func (e *fakeEngine) CheckTimeouts() { e.ticks++ }

type fakeSession struct {
	cb       engine.Callbacks
	peer     net.Addr
	window   int
	intent   int
	connects int
	unacked  int
	closed   bool
}

func (s *fakeSession) SetCallbacks(cb engine.Callbacks) { s.cb = cb }
func (s *fakeSession) PeerAddr() net.Addr               { return s.peer }
func (s *fakeSession) Unacked() int                     { return s.unacked }

func (s *fakeSession) Connect() error {
	s.connects++
	return nil
}

func (s *fakeSession) Write(n int) bool {
	s.intent = n
	return n <= s.window
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.cb = nil
	return nil
}

// pull n advertised bytes the way an engine fills a packet.
func (s *fakeSession) pull(n int) []byte {
	p := make([]byte, n)
	s.cb.OnWrite(p)
	s.intent -= n
	return p
}

// hookRecorder captures hook invocations.
type hookRecorder struct {
	writable []bool
	errs     []error
	overhead []engine.Overhead
}

func (h *hookRecorder) Writable(_ *Endpoint, w bool)            { h.writable = append(h.writable, w) }
func (h *hookRecorder) Error(_ *Endpoint, err error)            { h.errs = append(h.errs, err) }
func (h *hookRecorder) Overhead(_ *Endpoint, o engine.Overhead) { h.overhead = append(h.overhead, o) }
