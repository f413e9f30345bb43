package protocol

import (
	"context"
	"net"
	"sync"

	"github.com/SentimensRG/ctx"
	pipe "github.com/lthibault/utpwerks/pkg"
	synctoolz "github.com/lthibault/toolz/pkg/sync"
)

// StreamCountStrategy caches one connection per address and closes it once
// its last stream has been closed.
type StreamCountStrategy struct {
	// OnConnOpened, if set, is called each time a fresh connection is dialed.
	OnConnOpened func(pipe.Conn)

	mu sync.Mutex
	cs map[string]*cacheDialer
}

// NewStreamCountStrategy ...
func NewStreamCountStrategy() *StreamCountStrategy {
	return &StreamCountStrategy{cs: make(map[string]*cacheDialer)}
}

func (ds *StreamCountStrategy) evict(key string, d *cacheDialer) func() {
	return func() {
		ds.mu.Lock()
		if ds.cs[key] == d {
			delete(ds.cs, key)
		}
		ds.mu.Unlock()
	}
}

func (ds *StreamCountStrategy) getDialer(a net.Addr) (*cacheDialer, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	key := a.String()
	cd, ok := ds.cs[key]
	if !ok {
		cd = new(cacheDialer)
		cd.gc = ds.evict(key, cd)
		ds.cs[key] = cd
	}

	return cd, ok
}

// GetConn returns an existing conn if one exists for the given address, else dials a
// new connection.
func (ds *StreamCountStrategy) GetConn(c context.Context, d pipe.Dialer, a net.Addr) (pipe.Conn, bool, error) {
	cd, cached := ds.getDialer(a)

	conn, fresh, err := cd.Dial(c, d, a)
	if err != nil {
		return nil, false, err
	}

	if fresh && ds.OnConnOpened != nil {
		ds.OnConnOpened(conn)
	}

	return conn, cached, nil
}

type cacheDialer struct {
	sync.Once

	gc   func()
	conn *ctrConn
	err  error
}

func (d *cacheDialer) Dial(c context.Context, p pipe.Dialer, a net.Addr) (conn *ctrConn, fresh bool, err error) {
	d.Do(func() {
		fresh = true

		var raw pipe.Conn
		if raw, d.err = p.Dial(c, a); d.err != nil {
			d.gc()
			return
		}

		ctx.Defer(raw.Context(), d.gc)
		d.conn = &ctrConn{Conn: raw, evict: d.gc}
	})

	return d.conn, fresh, d.err
}

// ctrConn closes itself when its stream count drops to zero.
type ctrConn struct {
	mu sync.RWMutex
	synctoolz.Ctr
	pipe.Conn

	evict func()
}

func (c *ctrConn) Stream() pipe.Streamer { return ctrStreamer{c} }

func (c *ctrConn) gc() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Ctr.Decr() == 0 {
		if c.evict != nil {
			c.evict()
		}
		c.Conn.Close()
	}
}

func (c *ctrConn) wrap(s pipe.Stream) pipe.Stream {
	c.Ctr.Incr()
	return &ctrStream{Stream: s, done: c.gc}
}

type ctrStreamer struct{ c *ctrConn }

func (s ctrStreamer) Accept() (pipe.Stream, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()

	st, err := s.c.Conn.Stream().Accept()
	if err != nil {
		return nil, err
	}

	return s.c.wrap(st), nil
}

func (s ctrStreamer) Open() (pipe.Stream, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()

	st, err := s.c.Conn.Stream().Open()
	if err != nil {
		return nil, err
	}

	return s.c.wrap(st), nil
}

type ctrStream struct {
	pipe.Stream
	once sync.Once
	done func()
}

func (s *ctrStream) Close() (err error) {
	err = s.Stream.Close()
	s.once.Do(s.done) // decr-ing before close might cause Close() to report errors
	return
}
