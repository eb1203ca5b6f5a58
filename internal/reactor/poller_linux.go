//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// poller wraps a Linux epoll instance plus an eventfd used to force
// epoll_wait out of a blocking call from wakeup().
type poller struct {
	epfd     int
	eventfd  int
	eventBuf []unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &poller{epfd: epfd, eventfd: efd, eventBuf: make([]unix.EpollEvent, 256)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}); err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) Interest {
	var i Interest
	if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
		i |= Read
	}
	if ev&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
		i |= Write
	}
	return i
}

func (p *poller) add(fd int, interest Interest) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)})
}

func (p *poller) modify(fd int, interest Interest) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)})
}

func (p *poller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks for up to timeoutMs (-1 == forever) and appends ready
// (fd, Interest) pairs to dst, returning the extended slice. The eventfd
// wakeup, if it fired, is drained here and never reported to the caller.
func (p *poller) wait(timeoutMs int, dst []readyFD) ([]readyFD, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for idx := 0; idx < n; idx++ {
		ev := p.eventBuf[idx]
		fd := int(ev.Fd)
		if fd == p.eventfd {
			p.drainWakeup()
			continue
		}
		dst = append(dst, readyFD{fd: fd, events: fromEpollEvents(ev.Events)})
	}
	return dst, nil
}

func (p *poller) drainWakeup() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.eventfd, buf[:])
		if err != nil {
			return
		}
	}
}

// wakeup forces a blocked wait() to return promptly.
func (p *poller) wakeup() {
	one := [8]byte{1}
	_, _ = unix.Write(p.eventfd, one[:])
}

func (p *poller) close() error {
	_ = unix.Close(p.eventfd)
	return unix.Close(p.epfd)
}

type readyFD struct {
	fd     int
	events Interest
}
