package utp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/lthibault/utpwerks/pkg/engine/plain"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultLinger bounds how long Conn.Close waits for buffered data to be
// acknowledged.
const DefaultLinger = 5 * time.Second

// ErrLoopClosed is returned by operations on a closed Loop.
var ErrLoopClosed = errors.New("utp: loop closed")

// LoopOption configures a Loop
type LoopOption func(*Loop) (prev LoopOption)

// OptLoopEngine sets the engine shared by every endpoint of the loop.  By
// default each Loop gets its own plain.Engine.
func OptLoopEngine(eng engine.Engine) LoopOption {
	return func(l *Loop) (prev LoopOption) {
		prev = OptLoopEngine(l.eng)
		l.eng = eng
		return
	}
}

// OptLoopLogger sets the logger
func OptLoopLogger(log logrus.FieldLogger) LoopOption {
	return func(l *Loop) (prev LoopOption) {
		prev = OptLoopLogger(l.log)
		l.log = log
		return
	}
}

// OptInterval sets the poll timeout, which is also the cadence of the engine's
// timeout sweep.  Defaults to TimeoutInterval.
func OptInterval(d time.Duration) LoopOption {
	return func(l *Loop) (prev LoopOption) {
		prev = OptInterval(l.interval)
		l.interval = d
		return
	}
}

// OptLinger sets how long Conn.Close waits for unacknowledged data.
func OptLinger(d time.Duration) LoopOption {
	return func(l *Loop) (prev LoopOption) {
		prev = OptLinger(l.linger)
		l.linger = d
		return
	}
}

// group of endpoints sharing a descriptor.  The root owns the descriptor and
// is closed once nothing references it.
type group struct {
	root *Endpoint
	refs int
}

// Loop drives endpoints from a single goroutine and exposes them as blocking
// net.Conn and net.Listener values.  Every call into an endpoint or the engine
// happens with mu held.
type Loop struct {
	mu   sync.Mutex
	cond *sync.Cond

	eng      engine.Engine
	log      logrus.FieldLogger
	interval time.Duration
	linger   time.Duration

	groups map[*Endpoint]*group
	conns  map[*Endpoint]*Conn

	running bool
	closed  bool
	done    chan struct{}
}

// NewLoop creates a Loop.  The polling goroutine starts with the first Listen
// or Dial.
func NewLoop(opt ...LoopOption) *Loop {
	l := &Loop{
		log:      nullLogger(),
		interval: TimeoutInterval,
		linger:   DefaultLinger,
		groups:   make(map[*Endpoint]*group),
		conns:    make(map[*Endpoint]*Conn),
		done:     make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)

	for _, o := range opt {
		o(l)
	}

	if l.eng == nil {
		l.eng = plain.New(plain.OptLogger(l.log))
	}

	return l
}

// Engine used by the loop's endpoints
func (l *Loop) Engine() engine.Engine { return l.eng }

func (l *Loop) start() {
	if !l.running {
		l.running = true
		go l.run()
	}
}

func (l *Loop) run() {
	defer close(l.done)

	var (
		fds   []unix.PollFd
		roots []*Endpoint
	)

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}

		fds, roots = fds[:0], roots[:0]
		for root := range l.groups {
			if fd := root.Fd(); fd >= 0 {
				fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
				roots = append(roots, root)
			}
		}
		l.mu.Unlock()

		if _, err := unix.Poll(fds, int(l.interval/time.Millisecond)); err != nil && err != unix.EINTR {
			l.log.WithError(err).Warn("poll failed")
			time.Sleep(l.interval)
		}

		l.mu.Lock()
		for i, root := range roots {
			// the group may have been released while we were polling
			if fds[i].Revents == 0 || l.groups[root] == nil {
				continue
			}

			if err := root.HandleReadable(); err != nil {
				l.log.WithError(err).WithField("fd", fds[i].Fd).Debug("read failed")
			}
		}

		l.eng.CheckTimeouts()
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

// Listen on the local address.  It satisfies the generic transport's
// NetListener.
func (l *Loop) Listen(c context.Context, network, address string) (net.Listener, error) {
	a, err := ResolveAddr(network, address)
	if err != nil {
		return nil, err
	}

	return l.ListenAddr(network, a)
}

// ListenAddr is Listen with a resolved address.
func (l *Loop) ListenAddr(network string, a *Addr) (*Listener, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLoopClosed
	}

	root := l.endpoint(family(network, a), OptLocalAddr(a.UDPAddr))
	if err := root.Listen(); err != nil {
		root.Close()
		return nil, err
	}

	local, err := root.LocalAddr()
	if err != nil {
		root.Close()
		return nil, err
	}

	g := &group{root: root, refs: 1}
	l.groups[root] = g
	l.start()

	l.log.WithField("local", local).Debug("listening")
	return &Listener{l: l, g: g, addr: Addr{UDPAddr: local.(*net.UDPAddr)}}, nil
}

// DialContext connects to the remote address over a fresh descriptor and
// waits for the handshake.  It satisfies the generic transport's NetDialer.
func (l *Loop) DialContext(c context.Context, network, address string) (net.Conn, error) {
	a, err := ResolveAddr(network, address)
	if err != nil {
		return nil, err
	}

	return l.DialAddr(c, network, a)
}

// DialAddr is DialContext with a resolved address.
func (l *Loop) DialAddr(c context.Context, network string, a *Addr) (*Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLoopClosed
	}

	ep := l.endpoint(family(network, a))
	if err := ep.Connect(a.UDPAddr); err != nil {
		ep.Close()
		return nil, err
	}

	g := &group{root: ep, refs: 1}
	l.groups[ep] = g
	conn := l.newConn(ep, g)
	l.start()

	for ep.State() == StateUnestablished && conn.err == nil {
		if l.closed {
			conn.err = ErrLoopClosed
		} else if err := c.Err(); err != nil {
			conn.err = err
		} else {
			l.cond.Wait()
		}
	}

	if err := conn.err; err != nil {
		conn.destroy()
		return nil, errors.Wrapf(err, "dial %s", a)
	}

	return conn, nil
}

// Close every endpoint and stop the polling goroutine.  Blocked calls return
// ErrLoopClosed.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.closed = true

	for ep, c := range l.conns {
		if ep != c.g.root {
			ep.Close()
		}
		delete(l.conns, ep)
	}

	for root := range l.groups {
		root.Close()
		delete(l.groups, root)
	}

	l.cond.Broadcast()
	running := l.running
	l.mu.Unlock()

	if running {
		<-l.done
	}

	return nil
}

func (l *Loop) endpoint(family int, opt ...Option) *Endpoint {
	opt = append([]Option{
		OptEngine(l.eng),
		OptHooks(loopHooks{l: l}),
		OptLogger(l.log),
	}, opt...)

	return New(family, opt...)
}

func (l *Loop) newConn(ep *Endpoint, g *group) *Conn {
	c := &Conn{l: l, ep: ep, g: g}
	l.conns[ep] = c
	return c
}

func (l *Loop) release(g *group) {
	if g.refs--; g.refs > 0 {
		return
	}

	if l.groups[g.root] == g {
		delete(l.groups, g.root)
		g.root.Close()
	}
}

// wait for the next loop iteration, which is at most one interval away.
func (l *Loop) wait() error {
	if l.closed {
		return ErrLoopClosed
	}

	l.cond.Wait()
	return nil
}

// loopHooks record transport errors on the affected Conn.
type loopHooks struct {
	NopHooks
	l *Loop
}

func (h loopHooks) Error(e *Endpoint, err error) {
	if c, ok := h.l.conns[e]; ok && c.err == nil {
		c.err = err
	}
}
