package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNetwork(t *testing.T) {
	tp := New()

	_, err := tp.Listen(context.Background(), &net.UDPAddr{})
	assert.Error(t, err)

	_, err = tp.Dial(context.Background(), &net.UDPAddr{})
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		tp := New()
		assert.Equal(t, DefaultKeepAlive, tp.d.KeepAlive)
		assert.Equal(t, DefaultKeepAlive, tp.lc.KeepAlive)
	})

	t.Run("Dialer", func(t *testing.T) {
		d := &net.Dialer{Timeout: time.Second}
		tp := New(OptDialer(d))

		assert.Equal(t, d, tp.Transport.NetDialer)
		assert.Equal(t, d, tp.d)
	})

	t.Run("KeepAlive", func(t *testing.T) {
		tp := New()
		prev := OptKeepAlive(-1)(&tp)
		assert.Equal(t, time.Duration(-1), tp.d.KeepAlive)
		assert.Equal(t, time.Duration(-1), tp.lc.KeepAlive)

		prev(&tp)
		assert.Equal(t, DefaultKeepAlive, tp.d.KeepAlive)
	})
}

func TestIntegration(t *testing.T) {
	tp := New()

	l, err := tp.Listen(context.Background(), &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		conn, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		s, err := conn.Stream().Accept()
		if err != nil {
			return err
		}
		defer s.Close()

		_, err = io.Copy(s, io.LimitReader(s, 5))
		return err
	})

	g.Go(func() error {
		conn, err := tp.Dial(ctx, l.Addr())
		if err != nil {
			return err
		}
		defer conn.Close()

		s, err := conn.Stream().Open()
		if err != nil {
			return err
		}

		if _, err = s.Write([]byte("hello")); err != nil {
			return err
		}

		b := make([]byte, 5)
		if _, err = io.ReadFull(s, b); err != nil {
			return err
		}

		assert.Equal(t, "hello", string(b))
		return nil
	})

	assert.NoError(t, g.Wait())
}
