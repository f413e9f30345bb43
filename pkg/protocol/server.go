package protocol

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrServerClosed indicates that the server is no longer accepting connections.
	ErrServerClosed = errors.New("server closed")
)

// Server is a generic server that handles incoming streams
type Server struct {
	Handler
	Backoff backoff.Backoff
	Logger  logrus.FieldLogger

	ConnState   ConnStateHandler
	StreamState StreamStateHandler

	init   sync.Once
	mu     sync.Mutex
	c      context.Context
	cancel func()
	ls     *listenerSet
	conns  closerSet
	cs     closerSet
}

func (s *Server) setup() {
	s.init.Do(func() {
		s.c, s.cancel = context.WithCancel(context.Background())
		s.ls = &listenerSet{ls: make(map[*pipe.Listener]struct{}), mu: &s.mu}
		s.conns.cs = make(map[io.Closer]struct{})
		s.cs.cs = make(map[io.Closer]struct{})
		if s.Logger == nil {
			s.Logger = nullLogger()
		}
	})
}

// Serve streams.  Serve always returns a non-nil error and closes l.
func (s *Server) Serve(l pipe.Listener) error {
	s.setup()

	l = &closeOnceListener{Listener: l}
	defer l.Close()

	if !s.ls.Add(&l) {
		return ErrServerClosed
	}
	defer s.ls.Del(&l)

	log := s.Logger.WithField("addr", l.Addr())
	log.Debug("serving")

	for {
		conn, e := l.Accept(s.c)
		if e != nil {
			if s.c.Err() != nil || s.ls.isClosed() {
				return ErrServerClosed
			}

			if ne, ok := errors.Cause(e).(net.Error); ok && ne.Temporary() {
				log.WithError(e).
					WithField("retry", s.Backoff.ForAttempt(s.Backoff.Attempt())).
					Debug("failed to accept connection")
				time.Sleep(s.Backoff.Duration())
				continue
			}
			return e
		}

		s.Backoff.Reset()
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn pipe.Conn) {
	s.conns.Add(conn)
	s.connState(conn, ConnStateOpen)
	defer func() {
		conn.Close()
		s.conns.Del(conn)
		s.connState(conn, ConnStateClosed)
	}()

	log := s.Logger.WithField("remote", conn.Endpoint().Remote())
	b := backoff.Backoff{Max: time.Minute, Jitter: true}

	for {
		stream, err := conn.Stream().Accept()
		if err != nil {
			if ne, ok := errors.Cause(err).(net.Error); ok && ne.Temporary() {
				log.WithError(err).
					WithField("retry", b.ForAttempt(b.Attempt())).
					Debug("failed to accept stream")
				time.Sleep(b.Duration())
				continue
			}

			log.WithError(err).Debug("connection done")
			return
		}

		b.Reset()
		go s.serveStream(stream)
	}
}

func (s *Server) serveStream(stream pipe.Stream) {
	s.cs.Add(stream)
	s.streamState(stream, StreamStateOpen)
	defer func() {
		stream.Close()
		s.cs.Del(stream)
		s.streamState(stream, StreamStateClosed)
	}()

	s.ServeStream(stream)
}

func (s *Server) connState(conn pipe.Conn, state ConnState) {
	if s.ConnState != nil {
		s.ConnState(conn, state)
	}
}

func (s *Server) streamState(stream pipe.Stream, state StreamState) {
	if s.StreamState != nil {
		s.StreamState(stream, state)
	}
}

// Close immediately, terminating all active pipe.Listeners and any connections.
// For graceful shutdown, use Shutdown.
func (s *Server) Close() error {
	s.setup()

	if s.c.Err() != nil {
		return ErrServerClosed
	}
	s.cancel()

	var g errgroup.Group
	g.Go(s.ls.CloseAll)
	g.Go(s.cs.CloseAll)
	g.Go(s.conns.CloseAll)
	return g.Wait()
}

// Shutdown gracefully shuts down the server without interrupting any active
// streams.  Open connections are closed once their streams have finished.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setup()

	var g errgroup.Group
	g.Go(s.ls.CloseAll)
	g.Go(func() error {
		ticker := time.NewTicker(time.Millisecond * 50)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if s.cs.quiescent() {
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return s.conns.CloseAll()
}

type closeOnceListener struct {
	sync.Once
	pipe.Listener
	err error
}

func (l *closeOnceListener) Close() error {
	l.Do(func() { l.err = l.Listener.Close() })
	return l.err
}

type listenerSet struct {
	mu     sync.Locker
	ls     map[*pipe.Listener]struct{}
	closed bool
}

func (s *listenerSet) Add(l *pipe.Listener) (active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.ls[l] = struct{}{}
		active = true
	}

	return
}

func (s *listenerSet) Del(l *pipe.Listener) {
	s.mu.Lock()
	delete(s.ls, l)
	s.mu.Unlock()
}

func (s *listenerSet) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *listenerSet) CloseAll() error {
	s.mu.Lock()

	s.closed = true

	var g errgroup.Group
	for l := range s.ls {
		g.Go((*l).Close)
	}

	s.mu.Unlock()
	return g.Wait()
}

type closerSet struct {
	mu sync.Mutex
	cs map[io.Closer]struct{}
}

func (c *closerSet) quiescent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cs) == 0
}

func (c *closerSet) Add(cl io.Closer) {
	c.mu.Lock()
	c.cs[cl] = struct{}{}
	c.mu.Unlock()
}

func (c *closerSet) Del(cl io.Closer) {
	c.mu.Lock()
	delete(c.cs, cl)
	c.mu.Unlock()
}

func (c *closerSet) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var g errgroup.Group
	for cl := range c.cs {
		g.Go(cl.Close)
	}
	return g.Wait()
}
