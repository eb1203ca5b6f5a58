package udpproxy

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// errAgain mirrors tcpproxy's sentinel: EAGAIN/EWOULDBLOCK translated into
// a typed, comparable error instead of a raw errno.
var errAgain = errors.New("udpproxy: would block")

// maxDatagramSize bounds the scratch buffer used for a single receive;
// larger than any UDP payload that can arrive on a standard MTU path.
const maxDatagramSize = 65535

func setUDPOptions(fd, rcvBuf, sndBuf int) error {
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

// newBoundSocket creates Inner's local socket. Per the design notes' OS
// parity open question, the socket is created blocking, options are
// applied, it is bound, and only then switched to nonblocking.
func newBoundSocket(local *net.UDPAddr, rcvBuf, sndBuf int) (int, error) {
	sa, family, err := udpSockaddr(local)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := setUDPOptions(fd, rcvBuf, sndBuf); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// newConnectedSocket creates an Outer's upstream socket, connected to
// remote so that subsequent I/O can use plain read/write instead of
// recvfrom/sendto. Same blocking-then-nonblocking ordering as the bound
// socket, preserved for the same OS-parity reason.
func newConnectedSocket(remote *net.UDPAddr, rcvBuf, sndBuf int) (int, error) {
	sa, family, err := udpSockaddr(remote)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := setUDPOptions(fd, rcvBuf, sndBuf); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// recvFrom reads one datagram off an unconnected socket. ok is false on
// EAGAIN (nothing pending right now).
func recvFrom(fd int, buf []byte) (n int, from *net.UDPAddr, ok bool, err error) {
	n, sa, rerr := unix.Recvfrom(fd, buf, 0)
	if rerr != nil {
		if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) {
			return 0, nil, false, nil
		}
		return 0, nil, false, rerr
	}
	return n, sockaddrToUDPAddr(sa), true, nil
}

// sendTo writes one datagram to an arbitrary destination off Inner's
// unconnected socket.
func sendTo(fd int, buf []byte, addr *net.UDPAddr) (int, error) {
	sa, _, err := udpSockaddr(addr)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(fd, buf, 0, sa); err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return len(buf), nil
}

// readConn reads one datagram off a connected (Outer) socket.
func readConn(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

// writeConn writes one datagram to a connected (Outer) socket's peer.
func writeConn(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}
