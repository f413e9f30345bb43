package utp

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Addr of a utp endpoint
type Addr struct{ *net.UDPAddr }

// Network satisfies net.Addr
func (Addr) Network() string { return "utp" }

// ResolveAddr parses address as a host:port pair for network "utp", "utp4" or
// "utp6".
func ResolveAddr(network, address string) (*Addr, error) {
	n, err := udpNetwork(network)
	if err != nil {
		return nil, err
	}

	a, err := net.ResolveUDPAddr(n, address)
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}

	return &Addr{UDPAddr: a}, nil
}

func udpNetwork(network string) (string, error) {
	switch network {
	case "utp":
		return "udp", nil
	case "utp4":
		return "udp4", nil
	case "utp6":
		return "udp6", nil
	}

	return "", errors.Errorf("utp: unknown network %s", network)
}

// family picks the address family of the descriptor used to reach or serve a.
func family(network string, a *Addr) int {
	switch {
	case network == "utp6":
		return unix.AF_INET6
	case network == "utp4", a.IP == nil, a.IP.To4() != nil:
		return unix.AF_INET
	}

	return unix.AF_INET6
}
