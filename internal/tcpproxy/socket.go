package tcpproxy

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sockaddr converts a resolved TCP address into a unix.Sockaddr, preferring
// IPv4 when possible since the proxy's test harnesses overwhelmingly bind
// loopback v4 addresses.
func sockaddr(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	ip4 := addr.IP.To4()
	if ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, unix.AF_INET, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, 0, fmt.Errorf("tcpproxy: unresolvable address %v", addr)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip6)
	return &sa, unix.AF_INET6, nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	default:
		return nil
	}
}

// listen creates a nonblocking, SO_REUSEADDR listening socket bound to
// addr with the given backlog.
func listen(addr *net.TCPAddr, backlog int) (int, error) {
	sa, family, err := sockaddr(addr)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// acceptOne accepts a single pending connection off a nonblocking
// listening socket. ok is false on EAGAIN (nothing pending right now).
func acceptOne(listenFD int) (fd int, remote *net.TCPAddr, ok bool, err error) {
	nfd, sa, aerr := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if errors.Is(aerr, unix.EAGAIN) || errors.Is(aerr, unix.EWOULDBLOCK) {
			return -1, nil, false, nil
		}
		return -1, nil, false, aerr
	}
	return nfd, sockaddrToTCPAddr(sa), true, nil
}

// dial creates a nonblocking outbound socket and starts connecting to
// addr. connected is true if the connect completed synchronously (common
// for loopback addresses); otherwise the caller must wait for CONNECT
// readiness and call finishConnect.
func dial(addr *net.TCPAddr) (fd int, connected bool, err error) {
	sa, family, err := sockaddr(addr)
	if err != nil {
		return -1, false, err
	}
	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, err
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, true, nil
	}
	if errors.Is(err, unix.EINPROGRESS) {
		return fd, false, nil
	}
	_ = unix.Close(fd)
	return -1, false, err
}

// finishConnect checks a socket's pending connect for completion,
// returning the connect error (if any) reported via SO_ERROR.
func finishConnect(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// setOptions applies the keepalive/nodelay/buffer-size socket options
// common to both sides of a pair.
func setOptions(fd int, keepAlive, noDelay bool, rcvBuf, sndBuf int) error {
	if keepAlive {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return err
		}
	}
	if noDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	if rcvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf); err != nil {
			return err
		}
	}
	if sndBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf); err != nil {
			return err
		}
	}
	return nil
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func readFD(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

func writeFD(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

var errAgain = errors.New("tcpproxy: would block")
