package utp

import (
	"bytes"
	"net"
	"testing"

	"github.com/lthibault/utpwerks/pkg/buffer"
	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var (
	loopback = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
	remote   = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
)

func connected(t *testing.T, opt ...Option) (*Endpoint, *fakeSession) {
	eng := new(fakeEngine)
	e := New(unix.AF_INET, append([]Option{OptEngine(eng), OptLocalAddr(loopback)}, opt...)...)
	require.NoError(t, e.Connect(remote))
	require.Len(t, eng.sessions, 1)
	return e, eng.sessions[0]
}

func TestState(t *testing.T) {
	assert.Equal(t, "unestablished", StateUnestablished.String())
	assert.Equal(t, "writable", StateWritable.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestConnect(t *testing.T) {
	t.Run("Binds", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		assert.True(t, e.bound)
		assert.NotEqual(t, -1, e.Fd())
		assert.Equal(t, 1, s.connects)
		assert.Equal(t, remote, e.PeerAddr())
		assert.NotNil(t, s.cb, "bridge not installed")
	})

	t.Run("Idempotent", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		fd := e.Fd()
		assert.NoError(t, e.Connect(remote))
		assert.Equal(t, fd, e.Fd(), "descriptor was rebound")
		assert.Equal(t, 2, s.connects)
		assert.Len(t, e.eng.(*fakeEngine).sessions, 1, "session was recreated")
	})

	t.Run("Capacity", func(t *testing.T) {
		e, s := connected(t, OptInboundLimit(4096))
		defer e.Close()

		b, ok := s.cb.(engine.Bounded)
		require.True(t, ok, "bridge does not report capacity")
		assert.Equal(t, 4096, b.RBCapacity())
	})

	t.Run("Destroyed", func(t *testing.T) {
		e := New(unix.AF_INET, OptEngine(new(fakeEngine)))
		require.NoError(t, e.Close())
		assert.Equal(t, ErrClosed, e.Connect(remote))
		assert.Equal(t, ErrClosed, e.Listen())
	})

	t.Run("BindFailure", func(t *testing.T) {
		e := New(unix.AF_INET, OptEngine(new(fakeEngine)),
			OptLocalAddr(&net.UDPAddr{IP: net.ParseIP("::1")}))
		defer e.Close()

		assert.Error(t, e.Listen())
		assert.Nil(t, e.Socket(), "descriptor leaked after failed bind")
		assert.Equal(t, -1, e.Fd())
	})
}

func TestSend(t *testing.T) {
	t.Run("NoSession", func(t *testing.T) {
		e := New(unix.AF_INET, OptEngine(new(fakeEngine)))
		defer e.Close()

		_, err := e.Send([]byte("hello"))
		assert.Equal(t, ErrNoSession, err)

		_, err = e.Recv(make([]byte, 8))
		assert.Equal(t, ErrNoSession, err)
	})

	t.Run("Cap", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		n, err := e.Send(make([]byte, 70000))
		assert.NoError(t, err)
		assert.Equal(t, MaxBuffer, n)
		assert.Equal(t, MaxBuffer, s.intent, "engine not told about buffered bytes")

		n, err = e.Send(make([]byte, 10))
		assert.NoError(t, err)
		assert.Zero(t, n, "accepted bytes past the cap")

		s.pull(100)
		n, err = e.Send(make([]byte, 10))
		assert.NoError(t, err)
		assert.Equal(t, 10, n)

		_, out := e.Buffered()
		assert.Equal(t, MaxBuffer-90, out)
		assert.Equal(t, MaxBuffer-90, s.intent)
	})

	t.Run("CapOverSequence", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		var want, got int
		for i, size := range []int{1000, 30000, 40000, 7, 65536, 1} {
			_, out := e.Buffered()
			free := MaxBuffer - out
			if size < free {
				free = size
			}
			want += free

			n, err := e.Send(make([]byte, size))
			require.NoError(t, err)
			got += n

			_, out = e.Buffered()
			assert.True(t, out <= MaxBuffer, "send %d overflowed the buffer", i)

			if i%2 == 1 {
				s.pull(out / 2)
			}
		}

		assert.Equal(t, want, got)
	})

	t.Run("Writable", func(t *testing.T) {
		h := new(hookRecorder)
		e, s := connected(t, OptHooks(h))
		defer e.Close()

		s.window = 4
		_, err := e.Send([]byte("hello"))
		require.NoError(t, err)
		assert.False(t, e.Writable())

		s.cb.OnStateChange(engine.StateWritable)
		assert.True(t, e.Writable())
		assert.Equal(t, []bool{false, true}, h.writable)
	})

	t.Run("BeforeWritable", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		assert.Equal(t, StateUnestablished, e.State())

		n, err := e.Send([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		_, out := e.Buffered()
		assert.Equal(t, 5, out)

		s.cb.OnStateChange(engine.StateConnect)
		assert.Equal(t, StateWritable, e.State())
		assert.Equal(t, "hello", string(s.pull(5)))

		_, out = e.Buffered()
		assert.Zero(t, out)
	})
}

func TestRecv(t *testing.T) {
	t.Run("FIFO", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		chunks := [][]byte{[]byte("abc"), []byte("defgh"), []byte("i")}
		for _, c := range chunks {
			require.NoError(t, s.cb.OnRead(c))
		}

		assert.Equal(t, 9, s.cb.RBSize())

		var got bytes.Buffer
		p := make([]byte, 4)
		for {
			n, err := e.Recv(p)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			got.Write(p[:n])
		}

		assert.Equal(t, "abcdefghi", got.String())
		assert.Zero(t, s.cb.RBSize())
	})

	t.Run("InboundLimit", func(t *testing.T) {
		e, s := connected(t, OptInboundLimit(8))
		defer e.Close()

		require.NoError(t, s.cb.OnRead([]byte("123456")))

		err := s.cb.OnRead([]byte("7890"))
		assert.Equal(t, buffer.ErrTooLarge, errors.Cause(err))
		assert.Equal(t, 6, s.cb.RBSize(), "refused bytes were partially buffered")

		p := make([]byte, 6)
		n, _ := e.Recv(p)
		assert.Equal(t, "123456", string(p[:n]))
		assert.NoError(t, s.cb.OnRead([]byte("7890")), "drained buffer still refused bytes")
	})
}

func TestClosed(t *testing.T) {
	h := new(hookRecorder)
	e, s := connected(t, OptHooks(h))
	defer e.Close()

	s.cb.OnStateChange(engine.StateConnect)
	require.True(t, e.Writable())

	s.cb.OnStateChange(engine.StateEOF)
	assert.True(t, e.Closed())
	assert.False(t, e.Writable())
	assert.Equal(t, StateClosed, e.State())

	t.Run("Terminal", func(t *testing.T) {
		s.cb.OnStateChange(engine.StateWritable)
		s.cb.OnStateChange(engine.StateConnect)

		assert.True(t, e.Closed())
		assert.False(t, e.Writable())
		assert.Equal(t, StateClosed, e.State())
	})

	t.Run("Send", func(t *testing.T) {
		_, err := e.Send([]byte("late"))
		assert.Equal(t, ErrClosed, err)
	})

	t.Run("RecvDrains", func(t *testing.T) {
		require.NoError(t, s.cb.OnRead([]byte("tail")))

		p := make([]byte, 8)
		n, err := e.Recv(p)
		assert.NoError(t, err)
		assert.Equal(t, "tail", string(p[:n]))
	})
}

func TestHooks(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		h := new(hookRecorder)
		e, s := connected(t, OptHooks(h))
		defer e.Close()

		s.cb.OnError(engine.ErrTimeout)
		assert.Equal(t, []error{engine.ErrTimeout}, h.errs)
		assert.False(t, e.Closed(), "error alone must not close the endpoint")
	})

	t.Run("Overhead", func(t *testing.T) {
		c := new(OverheadCounter)
		e, s := connected(t, OptHooks(c))
		defer e.Close()

		s.cb.OnOverhead(engine.Overhead{Send: true, Bytes: 16, Kind: engine.OverheadHeader})
		s.cb.OnOverhead(engine.Overhead{Bytes: 20, Kind: engine.OverheadAck})
		s.cb.OnOverhead(engine.Overhead{Send: true, Bytes: 4, Kind: engine.OverheadRetransmit})

		assert.Equal(t, 20, c.Sent)
		assert.Equal(t, 20, c.Received)
	})
}

func TestClose(t *testing.T) {
	t.Run("Session", func(t *testing.T) {
		e, s := connected(t)
		cb := s.cb

		assert.NoError(t, e.Close())
		assert.True(t, s.closed)
		assert.Nil(t, e.Socket())
		assert.Equal(t, ErrClosed, e.Close())

		assert.Equal(t, errReleased, cb.OnRead([]byte("x")), "released bridge accepted data")
		assert.Zero(t, cb.RBSize())
		assert.Zero(t, cb.(engine.Bounded).RBCapacity())
		assert.NotPanics(t, func() {
			cb.OnWrite(make([]byte, 4))
			cb.OnStateChange(engine.StateEOF)
			cb.OnError(engine.ErrTimeout)
		})

		_, err := e.Send([]byte("x"))
		assert.Equal(t, ErrClosed, err)
		_, err = e.Recv(make([]byte, 1))
		assert.Equal(t, ErrClosed, err)
	})

	t.Run("Shutdown", func(t *testing.T) {
		e, s := connected(t)
		defer e.Close()

		s.unacked = 1
		require.NoError(t, e.Shutdown())
		assert.True(t, s.closed)
		assert.NotNil(t, e.Socket(), "shutdown closed the descriptor")
		assert.False(t, e.Flushed())

		_, err := e.Send([]byte("x"))
		assert.Equal(t, ErrClosed, err)

		s.unacked = 0
		assert.True(t, e.Flushed())
	})
}
