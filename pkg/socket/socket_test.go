package socket

import (
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func loopback(t *testing.T, s *Socket) *net.UDPAddr {
	a, err := s.LocalAddr()
	require.NoError(t, err)
	ua := a.(*net.UDPAddr)
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: ua.Port}
}

func TestSocket(t *testing.T) {
	t.Run("UnsupportedFamily", func(t *testing.T) {
		_, err := New(unix.AF_UNIX)
		assert.Error(t, err)
	})

	a, err := New(unix.AF_INET)
	require.NoError(t, err)
	defer a.Close()

	b, err := New(unix.AF_INET)
	require.NoError(t, err)
	defer b.Close()

	t.Run("Family", func(t *testing.T) {
		assert.Equal(t, unix.AF_INET, a.Family())
	})

	t.Run("Bind", func(t *testing.T) {
		require.NoError(t, a.Bind(nil))
		require.NoError(t, b.Bind(nil))

		la, err := a.LocalAddr()
		require.NoError(t, err)
		assert.NotZero(t, la.(*net.UDPAddr).Port)
		assert.True(t, la.(*net.UDPAddr).IP.IsUnspecified())
	})

	t.Run("WouldBlock", func(t *testing.T) {
		_, _, err := a.RecvFrom(make([]byte, 64))
		assert.Equal(t, ErrWouldBlock, errors.Cause(err))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, b.SendTo([]byte("hello"), loopback(t, a)))

		p := make([]byte, 64)
		var n int
		var from net.Addr
		assert.Eventually(t, func() bool {
			n, from, err = a.RecvFrom(p)
			return err == nil
		}, time.Second, time.Millisecond)

		assert.Equal(t, "hello", string(p[:n]))
		assert.Equal(t, loopback(t, b).Port, from.(*net.UDPAddr).Port)
	})

	t.Run("AddrFamilyMismatch", func(t *testing.T) {
		err := a.SendTo([]byte("x"), &net.UDPAddr{IP: net.ParseIP("::1"), Port: 1})
		assert.Error(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		s, err := New(unix.AF_INET)
		require.NoError(t, err)

		assert.NoError(t, s.Close())
		assert.Equal(t, ErrClosed, s.Close())
		_, _, err = s.RecvFrom(make([]byte, 1))
		assert.Equal(t, ErrClosed, err)
	})
}
