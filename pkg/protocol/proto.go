// Package protocol serves and consumes pipe streams.
package protocol

import (
	"io/ioutil"

	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/sirupsen/logrus"
)

// ConnState tracks the state of a pipe.Conn
type ConnState uint8

const (
	ConnStateOpen ConnState = iota
	ConnStateClosed
)

func (c ConnState) String() string {
	switch c {
	case ConnStateOpen:
		return "open"
	case ConnStateClosed:
		return "closed"
	}

	panic("unreachable")
}

// StreamState tracks the state of a pipe.Stream
type StreamState uint8

const (
	StreamStateOpen StreamState = iota
	StreamStateClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamStateOpen:
		return "open"
	case StreamStateClosed:
		return "closed"
	}

	panic("unreachable")
}

// Handler responds to an incoming stream
type Handler interface {
	ServeStream(pipe.Stream)
}

// HandlerFunc is a type-adapter to allow the use of ordinary functions as stream
// handlers.
type HandlerFunc func(pipe.Stream)

// ServeStream calls f(s)
func (f HandlerFunc) ServeStream(s pipe.Stream) { f(s) }

// ConnStateHandler is notified when a server's connection changes state.
type ConnStateHandler func(pipe.Conn, ConnState)

// StreamStateHandler is notified when a server's stream changes state.
type StreamStateHandler func(pipe.Stream, StreamState)

func nullLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}
