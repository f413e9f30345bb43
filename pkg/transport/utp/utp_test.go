package utp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	pipe "github.com/lthibault/utpwerks/pkg"
	core "github.com/lthibault/utpwerks/pkg/utp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNetwork(t *testing.T) {
	tp := New()
	defer tp.Close()

	t.Run("Listen", func(t *testing.T) {
		_, err := tp.Listen(context.Background(), &net.TCPAddr{})
		assert.Error(t, err)
	})

	t.Run("Dial", func(t *testing.T) {
		_, err := tp.Dial(context.Background(), &net.UDPAddr{})
		assert.Error(t, err)
	})
}

func TestOptLoop(t *testing.T) {
	l := core.NewLoop()
	defer l.Close()

	tp := New(OptLoop(l))
	assert.Equal(t, l, tp.Loop())
	assert.Equal(t, l, tp.Transport.NetListener)
	assert.Equal(t, l, tp.Transport.NetDialer)
}

func TestIntegration(t *testing.T) {
	tp := New(OptLoop(core.NewLoop(core.OptInterval(time.Millisecond * 10))))
	defer tp.Close()

	a, err := core.ResolveAddr("utp", "127.0.0.1:0")
	require.NoError(t, err)

	l, err := tp.Listen(context.Background(), a)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
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

	var s pipe.Stream
	g.Go(func() error {
		conn, err := tp.Dial(ctx, l.Addr())
		if err != nil {
			return err
		}

		if s, err = conn.Stream().Open(); err != nil {
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

	require.NoError(t, g.Wait())
	assert.Equal(t, "utp", s.Endpoint().Remote().Network())
	assert.Equal(t, l.Addr().String(), s.Endpoint().Remote().String())
}
