// Package utp adapts a callback-driven reliable-transport engine to a
// buffer-oriented socket API.  Many logical connections share one
// non-blocking datagram descriptor; an external readiness loop calls
// HandleReadable when the descriptor is readable and CheckTimeouts on a
// steady cadence.
//
// Endpoints are not safe for concurrent use.  Loop provides blocking
// net.Conn and net.Listener implementations on top of them.
package utp

import (
	"net"

	"github.com/lthibault/utpwerks/pkg/buffer"
	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/lthibault/utpwerks/pkg/engine/plain"
	"github.com/lthibault/utpwerks/pkg/socket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// MaxBuffer is the capacity of an endpoint's outbound buffer.
	MaxBuffer = 65536

	// DefaultInboundLimit bounds the inbound buffer unless overridden with
	// OptInboundLimit.
	DefaultInboundLimit = plain.DefaultRecvWindow

	maxDatagram = 1 << 16
)

var (
	// ErrNoSession is returned by Send and Recv before Connect, as opposed to
	// an empty buffer.
	ErrNoSession = errors.New("utp: no session")

	// ErrClosed is returned by operations on a destroyed endpoint, and by Send
	// once the peer has closed the stream.
	ErrClosed = errors.New("utp: closed")

	// ErrNotBound is returned by HandleReadable before Listen or Connect.
	ErrNotBound = errors.New("utp: not bound")
)

// Endpoint is one end of a reliable byte stream, or a listener that produces
// them.
type Endpoint struct {
	family int
	local  net.Addr

	// bound is set on the endpoint that created the descriptor; only it
	// closes sock.  Accepted endpoints share sock with bound unset.
	bound     bool
	listening bool
	destroyed bool
	sock      *socket.Socket

	sess engine.Session
	eng  engine.Engine
	reg  *registry
	h    handle

	established, writable, closed, shut bool

	inLimit int
	in, out *buffer.Buffer
	pending acceptQueue
	rbuf    []byte

	hooks Hooks
	log   logrus.FieldLogger
}

// New endpoint for the given address family (unix.AF_INET or unix.AF_INET6).
func New(family int, opt ...Option) *Endpoint {
	e := &Endpoint{
		family:  family,
		eng:     DefaultEngine,
		inLimit: DefaultInboundLimit,
		hooks:   NopHooks{},
		log:     nullLogger(),
	}

	for _, o := range opt {
		o(e)
	}

	e.in = buffer.New(e.inLimit)
	e.out = buffer.New(MaxBuffer)
	e.reg = newRegistry()
	e.h = e.reg.register(e)
	return e
}

// adopt a session created by an inbound connection attempt.  The new endpoint
// shares the listener's descriptor without owning it.
func (e *Endpoint) adopt(s engine.Session) *Endpoint {
	child := &Endpoint{
		family:  e.sock.Family(),
		sock:    e.sock,
		sess:    s,
		eng:     e.eng,
		reg:     e.reg,
		inLimit: e.inLimit,
		in:      buffer.New(e.inLimit),
		out:     buffer.New(MaxBuffer),
		hooks:   e.hooks,
		log:     e.log.WithField("peer", s.PeerAddr()),
	}

	child.h = child.reg.register(child)
	s.SetCallbacks(bridge{reg: child.reg, h: child.h})
	return child
}

// Listen binds the descriptor and starts accepting inbound sessions.  On
// failure the descriptor is closed and Listen may be retried.
func (e *Endpoint) Listen() error {
	if e.destroyed {
		return ErrClosed
	}

	if err := e.bind(); err != nil {
		return err
	}

	e.listening = true
	return nil
}

// Connect binds the descriptor if needed, creates a session targeting addr on
// first use, and starts the opening handshake.
func (e *Endpoint) Connect(addr net.Addr) error {
	if e.destroyed {
		return ErrClosed
	}

	if err := e.bind(); err != nil {
		return err
	}

	if e.sess == nil {
		s, err := e.eng.Create(e.sendTo, addr)
		if err != nil {
			return errors.Wrap(err, "create session")
		}

		e.sess = s
		e.log = e.log.WithField("peer", addr)
		s.SetCallbacks(bridge{reg: e.reg, h: e.h})
	}

	return errors.Wrap(e.sess.Connect(), "connect")
}

func (e *Endpoint) bind() error {
	// sock is only ever set on an unbound endpoint when it was adopted, in
	// which case the listener owns the binding.
	if e.bound || e.sock != nil {
		return nil
	}

	s, err := socket.New(e.family)
	if err != nil {
		return errors.Wrap(err, "bind")
	}

	if err = s.Bind(e.local); err != nil {
		s.Close()
		return errors.Wrap(err, "bind")
	}

	e.sock = s
	e.bound = true

	if a, err := s.LocalAddr(); err == nil {
		e.log = e.log.WithField("local", a)
	}
	e.log.WithField("fd", s.Fd()).Debug("bound")

	return nil
}

// Send buffers as much of p as fits in the outbound buffer and tells the
// engine how many bytes are waiting.  Callers must retry the remainder.
func (e *Endpoint) Send(p []byte) (int, error) {
	switch {
	case e.destroyed:
		return 0, ErrClosed
	case e.sess == nil:
		return 0, ErrNoSession
	case e.closed, e.shut:
		return 0, ErrClosed
	}

	if free := e.out.Free(); len(p) > free {
		p = p[:free]
	}

	if len(p) == 0 {
		return 0, nil
	}

	if err := e.out.Append(p); err != nil {
		return 0, errors.Wrap(err, "send")
	}

	e.setWritable(e.sess.Write(e.out.Len()))
	return len(p), nil
}

// Recv drains up to len(p) received bytes.  It returns 0 when nothing is
// buffered.
func (e *Endpoint) Recv(p []byte) (int, error) {
	switch {
	case e.destroyed:
		return 0, ErrClosed
	case e.sess == nil:
		return 0, ErrNoSession
	}

	return e.in.ConsumeFront(p), nil
}

// Accept returns the oldest pending inbound endpoint and its peer address,
// transferring ownership to the caller.  It returns nil if none is pending.
func (e *Endpoint) Accept() (*Endpoint, net.Addr) {
	child := e.pending.pop()
	if child == nil {
		return nil, nil
	}

	return child, child.sess.PeerAddr()
}

// Writable reports whether the engine can take more data right now.
func (e *Endpoint) Writable() bool { return e.writable }

// Closed reports whether the peer has ended the stream.  Once true, it stays
// true.
func (e *Endpoint) Closed() bool { return e.closed }

// State of the endpoint's stream.
func (e *Endpoint) State() State {
	switch {
	case e.closed:
		return StateClosed
	case e.established:
		return StateWritable
	}

	return StateUnestablished
}

// Pending returns the number of accepted endpoints awaiting Accept.
func (e *Endpoint) Pending() int { return e.pending.Len() }

// Buffered returns the number of bytes waiting in the inbound and outbound
// buffers.
func (e *Endpoint) Buffered() (in, out int) { return e.in.Len(), e.out.Len() }

// Engine returns the engine driving the endpoint's session.
func (e *Endpoint) Engine() engine.Engine { return e.eng }

// Socket returns the shared descriptor, or nil before binding.
func (e *Endpoint) Socket() *socket.Socket { return e.sock }

// Fd returns the shared descriptor for use in a readiness loop, or -1.
func (e *Endpoint) Fd() int {
	if e.sock == nil {
		return -1
	}
	return e.sock.Fd()
}

// LocalAddr returns the address of the shared descriptor.
func (e *Endpoint) LocalAddr() (net.Addr, error) {
	if e.sock == nil {
		return nil, ErrNotBound
	}
	return e.sock.LocalAddr()
}

// PeerAddr returns the remote address of the session, or nil.
func (e *Endpoint) PeerAddr() net.Addr {
	if e.sess == nil {
		return nil
	}
	return e.sess.PeerAddr()
}

// Shutdown closes the session, which starts the engine's closing handshake,
// while leaving the descriptor open so the handshake can complete.  Send
// fails afterwards; Recv keeps draining what was already received.  Close
// must still be called.
func (e *Endpoint) Shutdown() error {
	switch {
	case e.destroyed:
		return ErrClosed
	case e.sess == nil:
		return ErrNoSession
	case e.shut:
		return nil
	}

	e.shut = true
	e.writable = false
	return errors.Wrap(e.sess.Close(), "shutdown")
}

// Flushed reports whether every byte passed to Send has left the outbound
// buffer and, if the engine can tell, been acknowledged by the peer.
func (e *Endpoint) Flushed() bool {
	if e.out.Len() > 0 {
		return false
	}

	if d, ok := e.sess.(engine.Drainer); ok {
		return d.Unacked() == 0
	}

	return true
}

// Close destroys the endpoint.  The session is closed unconditionally; the
// descriptor only if this endpoint bound it.  Unclaimed accepted endpoints
// are destroyed too.
func (e *Endpoint) Close() (err error) {
	if e.destroyed {
		return ErrClosed
	}

	e.destroyed = true
	e.listening = false
	e.writable = false
	e.reg.release(e.h)

	for child := e.pending.pop(); child != nil; child = e.pending.pop() {
		child.Close()
	}

	if e.sess != nil {
		err = errors.Wrap(e.sess.Close(), "close session")
		e.sess = nil
	}

	if e.bound {
		if cerr := e.sock.Close(); err == nil {
			err = errors.Wrap(cerr, "close socket")
		}
		e.bound = false
	}

	e.sock = nil
	e.log.Debug("closed")
	return err
}

func (e *Endpoint) onState(s engine.State) {
	if e.closed {
		return
	}

	e.log.WithField("state", s).Debug("state changed")

	switch s {
	case engine.StateConnect, engine.StateWritable:
		e.established = true
		e.setWritable(true)

	case engine.StateEOF:
		e.closed = true
		e.setWritable(false)
	}
}

func (e *Endpoint) setWritable(w bool) {
	if w && (e.closed || e.shut) {
		return
	}

	e.writable = w
	e.hooks.Writable(e, w)
}

func (e *Endpoint) sendTo(p []byte, to net.Addr) error {
	if e.sock == nil {
		return socket.ErrClosed
	}
	return e.sock.SendTo(p, to)
}
