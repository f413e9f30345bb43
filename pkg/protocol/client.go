package protocol

import (
	"context"
	"net"
	"sync"

	pipe "github.com/lthibault/utpwerks/pkg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultStrategy is a global dial strategy that allows clients to share a global
// connection & stream pool.
var DefaultStrategy DialStrategy = NewStreamCountStrategy()

// DialStrategy is responsible for dialing connections.  This is where
// connection reuse is to be implemented.
type DialStrategy interface {
	GetConn(context.Context, pipe.Dialer, net.Addr) (c pipe.Conn, cached bool, err error)
}

// A Client connects to a server
type Client struct {
	Dialer   pipe.Dialer
	Strategy DialStrategy
	Logger   logrus.FieldLogger

	o sync.Once
}

func (c *Client) init() {
	if c.Strategy == nil {
		c.Strategy = DefaultStrategy
	}

	if c.Logger == nil {
		c.Logger = nullLogger()
	}
}

// Connect to the specified server
func (c *Client) Connect(ctx context.Context, a net.Addr) (pipe.Stream, error) {
	c.o.Do(c.init)

	conn, cached, err := c.Strategy.GetConn(ctx, c.Dialer, a)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", a)
	}

	c.Logger.WithFields(logrus.Fields{
		"addr":   a,
		"cached": cached,
	}).Debug("opening stream")

	s, err := conn.Stream().Open()
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", a)
	}

	return s, nil
}
