package plain

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option for Engine
type Option func(*Engine) (prev Option)

// OptRTO sets the bounds of the retransmission timeout.  The timeout starts at
// min and doubles on each consecutive retransmission, up to max.
func OptRTO(min, max time.Duration) Option {
	return func(e *Engine) (prev Option) {
		prev = OptRTO(e.minRTO, e.maxRTO)
		e.minRTO, e.maxRTO = min, max
		return
	}
}

// OptMaxRetries sets the number of consecutive retransmissions after which a
// session fails with engine.ErrTimeout.
func OptMaxRetries(n int) Option {
	return func(e *Engine) (prev Option) {
		prev = OptMaxRetries(e.maxRetries)
		e.maxRetries = n
		return
	}
}

// OptRecvWindow sets the receive window from which unread bytes are
// subtracted when advertising flow-control credit to the peer.
func OptRecvWindow(n int) Option {
	return func(e *Engine) (prev Option) {
		prev = OptRecvWindow(e.recvWindow)
		e.recvWindow = n
		return
	}
}

// OptSendWindow caps the number of unacknowledged payload bytes in flight.
func OptSendWindow(n int) Option {
	return func(e *Engine) (prev Option) {
		prev = OptSendWindow(e.sendWindow)
		e.sendWindow = n
		return
	}
}

// OptPayloadSize sets the largest payload carried by a single datagram.
func OptPayloadSize(n int) Option {
	return func(e *Engine) (prev Option) {
		prev = OptPayloadSize(e.payloadSize)
		e.payloadSize = n
		return
	}
}

// OptLogger sets the logger
func OptLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) (prev Option) {
		prev = OptLogger(e.log)
		e.log = l
		return
	}
}

// OptClock sets the time source used for timers.
func OptClock(now func() time.Time) Option {
	return func(e *Engine) (prev Option) {
		prev = OptClock(e.now)
		e.now = now
		return
	}
}
