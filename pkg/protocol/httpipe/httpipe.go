// Package httpipe carries HTTP over pipe streams.  Each stream is one HTTP
// connection.
package httpipe

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/SentimensRG/ctx"
	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/lthibault/utpwerks/pkg/protocol"
	"github.com/pkg/errors"
)

// ErrClosed is returned by Accept once the listener has been closed.
var ErrClosed = errors.New("httpipe: listener closed")

type address struct{ network, addr string }

func (a address) Network() string { return a.network }
func (a address) String() string  { return a.addr }

// conn lets a pipe.Stream stand in for a net.Conn.
type conn struct{ pipe.Stream }

func (c conn) LocalAddr() net.Addr  { return c.Endpoint().Local() }
func (c conn) RemoteAddr() net.Addr { return c.Endpoint().Remote() }

// NewTransport produces an HTTP Transport that opens a stream through c for
// each HTTP connection.  Request hosts are dialed on the given pipe network,
// e.g. "utp".
func NewTransport(c *protocol.Client, network string) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			s, err := c.Connect(ctx, address{network, addr})
			if err != nil {
				return nil, err
			}

			return conn{s}, nil
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

type listener struct {
	l pipe.Listener

	c      context.Context
	cancel func()
	once   sync.Once
	err    error

	streams chan pipe.Stream
}

// NewListener returns a net.Listener whose connections are the streams
// opened by peers on l's connections.  Closing it closes l and every
// connection l produced.
func NewListener(l pipe.Listener) net.Listener {
	ln := &listener{l: l, streams: make(chan pipe.Stream)}
	ln.c, ln.cancel = context.WithCancel(context.Background())
	go ln.acceptConns()
	return ln
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept() (net.Conn, error) {
	select {
	case s := <-l.streams:
		return conn{s}, nil
	case <-l.c.Done():
		return nil, l.err
	}
}

func (l *listener) Close() error {
	l.fail(ErrClosed)
	return l.l.Close()
}

func (l *listener) fail(err error) {
	l.once.Do(func() {
		l.err = err
		l.cancel()
	})
}

func (l *listener) acceptConns() {
	for {
		pc, err := l.l.Accept(l.c)
		if err != nil {
			l.fail(errors.Wrap(err, "accept"))
			return
		}

		ctx.Defer(l.c, func() { pc.Close() })
		go l.acceptStreams(pc)
	}
}

func (l *listener) acceptStreams(pc pipe.Conn) {
	for {
		s, err := pc.Stream().Accept()
		if err != nil {
			pc.Close()
			return
		}

		select {
		case l.streams <- s:
		case <-l.c.Done():
			s.Close()
			return
		}
	}
}

// A Server defines parameters for running an HTTP Server.
type Server struct{ *http.Server }

// Serve HTTP from the specified Listener.  See http.Server.Serve
func (s Server) Serve(l pipe.Listener) error {
	return s.Server.Serve(NewListener(l))
}
