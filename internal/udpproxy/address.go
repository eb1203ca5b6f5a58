package udpproxy

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

func udpSockaddr(addr *net.UDPAddr) (unix.Sockaddr, int, error) {
	ip4 := addr.IP.To4()
	if ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, unix.AF_INET, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, 0, fmt.Errorf("udpproxy: unresolvable address %v", addr)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip6)
	return &sa, unix.AF_INET6, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	default:
		return nil
	}
}
