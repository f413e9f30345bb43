// Package generic multiplexes pipe streams over any net.Conn.
package generic

import (
	"context"
	"net"
	"time"

	"github.com/SentimensRG/ctx"
	"github.com/hashicorp/yamux"
	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/pkg/errors"
)

// contextAcceptor is implemented by listeners whose Accept can be abandoned.
type contextAcceptor interface {
	AcceptContext(context.Context) (net.Conn, error)
}

type listener struct {
	serverMuxAdapter
	net.Listener
}

func (l listener) Accept(c context.Context) (pipe.Conn, error) {
	raw, err := l.accept(c)
	if err != nil {
		return nil, errors.Wrap(err, "listener")
	}

	conn, err := l.AdaptServer(raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "mux")
	}

	return conn, nil
}

func (l listener) accept(c context.Context) (net.Conn, error) {
	if a, ok := l.Listener.(contextAcceptor); ok {
		return a.AcceptContext(c)
	}

	return l.Listener.Accept()
}

type edge struct{ local, remote net.Addr }

func (e edge) Local() net.Addr  { return e.local }
func (e edge) Remote() net.Addr { return e.remote }

type connection struct{ *yamux.Session }

func (c connection) Context() context.Context {
	return ctx.AsContext(ctx.C(c.CloseChan()))
}

func (c connection) Endpoint() pipe.Edge {
	return edge{local: c.LocalAddr(), remote: c.RemoteAddr()}
}

func (c connection) Stream() pipe.Streamer { return streamer(c) }

type streamer connection

func (s streamer) Open() (pipe.Stream, error) {
	ys, err := s.Session.OpenStream()
	if err != nil {
		return nil, errors.Wrap(err, "open stream")
	}

	return mkStream(connection(s), ys), nil
}

func (s streamer) Accept() (pipe.Stream, error) {
	ys, err := s.Session.AcceptStream()
	if err != nil {
		return nil, errors.Wrap(err, "accept stream")
	}

	return mkStream(connection(s), ys), nil
}

type stream struct {
	c      context.Context
	cancel func()
	e      pipe.Edge
	s      *yamux.Stream
}

func mkStream(conn connection, s *yamux.Stream) *stream {
	strm := &stream{e: conn.Endpoint(), s: s}
	strm.c, strm.cancel = context.WithCancel(conn.Context())
	return strm
}

func (s stream) Context() context.Context { return s.c }
func (s stream) Endpoint() pipe.Edge      { return s.e }
func (s stream) StreamID() uint32         { return s.s.StreamID() }

func (s stream) Read(b []byte) (n int, err error) {
	if n, err = s.s.Read(b); err != nil {
		err = s.chkErr(err)
	}
	return
}

func (s stream) Write(b []byte) (n int, err error) {
	if n, err = s.s.Write(b); err != nil {
		err = s.chkErr(err)
	}
	return
}

func (s stream) SetDeadline(t time.Time) error {
	return s.chkErr(s.s.SetDeadline(t))
}

func (s stream) SetReadDeadline(t time.Time) error {
	return s.chkErr(s.s.SetReadDeadline(t))
}

func (s stream) SetWriteDeadline(t time.Time) error {
	return s.chkErr(s.s.SetWriteDeadline(t))
}

// chkErr expires the stream's context unless err is nil or transient.
func (s stream) chkErr(err error) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(net.Error); ok && e.Timeout() {
		return err
	}

	s.cancel()
	return err
}

func (s stream) Close() error {
	s.cancel()
	return s.s.Close()
}

// Transport multiplexes streams over connections produced by a NetListener
// and a NetDialer.
type Transport struct {
	MuxAdapter
	NetListener
	NetDialer
}

// Listen on the address
func (t Transport) Listen(c context.Context, a net.Addr) (pipe.Listener, error) {
	l, err := t.NetListener.Listen(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	return listener{serverMuxAdapter: t.MuxAdapter, Listener: l}, nil
}

// Dial the address
func (t Transport) Dial(c context.Context, a net.Addr) (pipe.Conn, error) {
	raw, err := t.NetDialer.DialContext(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	conn, err := t.AdaptClient(raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "mux")
	}

	return conn, nil
}

// MuxConfig is a MuxAdapter that uses github.com/hashicorp/yamux.  A nil
// Config uses yamux's defaults.
type MuxConfig struct{ *yamux.Config }

// AdaptServer is called by the listener
func (c MuxConfig) AdaptServer(conn net.Conn) (pipe.Conn, error) {
	sess, err := yamux.Server(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}

	return connection{Session: sess}, nil
}

// AdaptClient is called by the dialer
func (c MuxConfig) AdaptClient(conn net.Conn) (pipe.Conn, error) {
	sess, err := yamux.Client(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}

	return connection{Session: sess}, nil
}

// New Generic Transport
func New(opt ...Option) (t Transport) {
	OptMuxAdapter(MuxConfig{})(&t)
	for _, fn := range opt {
		fn(&t)
	}

	return t
}
