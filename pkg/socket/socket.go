// Package socket wraps a raw, non-blocking datagram descriptor.  Unlike
// net.UDPConn, reads never park the goroutine: an empty socket reports
// ErrWouldBlock, and the descriptor can be handed to poll(2) by an external
// readiness loop.
package socket

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned by RecvFrom when no datagram is queued.
	ErrWouldBlock = errors.New("socket: would block")

	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("socket: closed")
)

// Socket is a datagram descriptor.
type Socket struct {
	fd     int
	family int
}

// New datagram socket for the given address family (unix.AF_INET or
// unix.AF_INET6).
func New(family int) (*Socket, error) {
	switch family {
	case unix.AF_INET, unix.AF_INET6:
	default:
		return nil, errors.Errorf("socket: unsupported address family %d", family)
	}

	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fd, err := unix.Socket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	unix.CloseOnExec(fd)

	return &Socket{fd: fd, family: family}, nil
}

// Fd returns the raw descriptor, for inclusion in a readiness loop.
func (s *Socket) Fd() int { return s.fd }

// Family returns the address family the socket was created with.
func (s *Socket) Family() int { return s.family }

// Bind the socket to the local address and switch it to non-blocking mode.  A
// nil address binds the wildcard address on an ephemeral port.
func (s *Socket) Bind(local net.Addr) error {
	if s.fd < 0 {
		return ErrClosed
	}

	sa, err := sockaddr(s.family, local)
	if err != nil {
		return err
	}

	if err = unix.Bind(s.fd, sa); err != nil {
		return errors.Wrap(err, "bind")
	}

	return errors.Wrap(unix.SetNonblock(s.fd, true), "set nonblock")
}

// RecvFrom reads one datagram into p.  It returns ErrWouldBlock if none is
// queued.
func (s *Socket) RecvFrom(p []byte) (int, net.Addr, error) {
	if s.fd < 0 {
		return 0, nil, ErrClosed
	}

	for {
		n, from, err := unix.Recvfrom(s.fd, p, 0)
		switch err {
		case nil:
			return n, addrOf(from), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, nil, ErrWouldBlock
		}

		return 0, nil, errors.Wrap(err, "recvfrom")
	}
}

// SendTo writes p as a single datagram.
func (s *Socket) SendTo(p []byte, to net.Addr) error {
	if s.fd < 0 {
		return ErrClosed
	}

	sa, err := sockaddr(s.family, to)
	if err != nil {
		return err
	}

	for {
		switch err = unix.Sendto(s.fd, p, 0, sa); err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		}

		return errors.Wrap(err, "sendto")
	}
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (net.Addr, error) {
	if s.fd < 0 {
		return nil, ErrClosed
	}

	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, errors.Wrap(err, "getsockname")
	}

	return addrOf(sa), nil
}

// Close the descriptor.  Subsequent calls return ErrClosed.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return ErrClosed
	}

	fd := s.fd
	s.fd = -1
	return errors.Wrap(unix.Close(fd), "close")
}
