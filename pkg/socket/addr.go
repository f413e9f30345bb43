package socket

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func sockaddr(family int, a net.Addr) (unix.Sockaddr, error) {
	var ip net.IP
	var port int
	var zone string

	switch v := a.(type) {
	case nil:
	case *net.UDPAddr:
		ip, port, zone = v.IP, v.Port, v.Zone
	default:
		ua, err := net.ResolveUDPAddr("udp", a.String())
		if err != nil {
			return nil, errors.Wrap(err, "resolve")
		}
		ip, port, zone = ua.IP, ua.Port, ua.Zone
	}

	switch family {
	case unix.AF_INET:
		sa := &unix.SockaddrInet4{Port: port}
		if ip != nil {
			ip4 := ip.To4()
			if ip4 == nil {
				return nil, errors.Errorf("socket: %s is not an IPv4 address", ip)
			}
			copy(sa.Addr[:], ip4)
		}
		return sa, nil

	case unix.AF_INET6:
		sa := &unix.SockaddrInet6{Port: port}
		if ip != nil {
			copy(sa.Addr[:], ip.To16())
		}
		if zone != "" {
			if ifi, err := net.InterfaceByName(zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return sa, nil
	}

	return nil, errors.Errorf("socket: unsupported address family %d", family)
}

func addrOf(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, v.Addr[:])
		return &net.UDPAddr{IP: ip, Port: v.Port}

	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, v.Addr[:])
		a := &net.UDPAddr{IP: ip, Port: v.Port}
		if v.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(v.ZoneId)); err == nil {
				a.Zone = ifi.Name
			}
		}
		return a
	}

	return nil
}
