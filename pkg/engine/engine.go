// Package engine defines the contract between the socket adapter and a
// reliable-transport engine.  The engine owns sequencing, retransmission and
// congestion control; the adapter owns buffers and the datagram socket.
//
// Engines are driven from a single goroutine.  Callbacks are invoked
// synchronously from within Engine and Session methods.
package engine

import (
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is reported through Callbacks.OnError when a session gives up
	// retransmitting.
	ErrTimeout = errors.New("engine: timed out")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("engine: session closed")
)

// State of a session, as reported to Callbacks.OnStateChange.
type State uint8

const (
	// StateConnect is reported when an outgoing session is established.
	StateConnect State = iota + 1
	// StateWritable is reported when the session can accept more data.
	StateWritable
	// StateEOF is reported when the peer has finished sending.
	StateEOF
)

func (s State) String() string {
	switch s {
	case StateConnect:
		return "connect"
	case StateWritable:
		return "writable"
	case StateEOF:
		return "eof"
	}

	return "unknown"
}

// OverheadKind classifies protocol overhead bytes.
type OverheadKind uint8

// Overhead kinds
const (
	OverheadHeader OverheadKind = iota
	OverheadAck
	OverheadRetransmit
	OverheadConnect
	OverheadClose
)

func (k OverheadKind) String() string {
	switch k {
	case OverheadHeader:
		return "header"
	case OverheadAck:
		return "ack"
	case OverheadRetransmit:
		return "retransmit"
	case OverheadConnect:
		return "connect"
	case OverheadClose:
		return "close"
	}

	return "unknown"
}

// Overhead is a statistics sample for bytes that were not application payload.
type Overhead struct {
	Send  bool
	Bytes int
	Kind  OverheadKind
}

// SendFunc transmits a raw datagram to the given address.
type SendFunc func(p []byte, to net.Addr) error

// IncomingFunc receives sessions created by inbound connection attempts.  It
// must install callbacks before returning.
type IncomingFunc func(Session)

// Callbacks receive session events.
type Callbacks interface {
	// OnRead delivers in-order payload.  A non-nil error means the bytes were
	// not accepted and the engine must not acknowledge them.
	OnRead(p []byte) error
	// OnWrite asks for exactly len(p) bytes of outgoing payload.  The engine
	// never asks for more than the last value passed to Session.Write.
	OnWrite(p []byte)
	// RBSize reports the number of received bytes not yet consumed by the
	// application.
	RBSize() int
	OnStateChange(State)
	OnError(error)
	OnOverhead(Overhead)
}

// Bounded is implemented by Callbacks whose receive buffer holds at most
// RBCapacity bytes.  Engines must not advertise more than RBCapacity minus
// RBSize.  A capacity of zero or less means unbounded.
type Bounded interface {
	RBCapacity() int
}

// Session is one logical reliable connection.
type Session interface {
	SetCallbacks(Callbacks)
	// Connect starts the opening handshake.
	Connect() error
	// Write signals that n bytes are available for transmission.  It reports
	// whether the engine can take all of them right now.
	Write(n int) bool
	PeerAddr() net.Addr
	// Close the session.  No callbacks are invoked afterwards.  Closing a
	// closed session is a no-op.
	Close() error
}

// Drainer is implemented by sessions that can report how much of what they
// sent is still unacknowledged.  It remains valid after Close, while the
// engine finishes the closing handshake.
type Drainer interface {
	Unacked() int
}

// Engine creates sessions and routes inbound datagrams to them.
type Engine interface {
	Create(send SendFunc, to net.Addr) (Session, error)
	// IsIncoming routes p to the session it belongs to, or creates a new
	// session and passes it to onIncoming.  It returns false if p is not a
	// datagram this engine understands.
	IsIncoming(onIncoming IncomingFunc, send SendFunc, p []byte, from net.Addr) bool
	// CheckTimeouts drives retransmission and keepalive timers for every
	// session the engine knows about.
	CheckTimeouts()
}
