package tcpproxy

import (
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
)

// Options carries the per-Acceptor socket and buffer settings a Crusher
// builds from its TCPOptions before constructing the acceptor.
type Options struct {
	Backlog        int
	KeepAlive      bool
	NoDelay        bool
	RcvBufferSize  int
	SndBufferSize  int
	ConnectTimeout time.Duration
	BufferCount    int
	BufferSize     int
	Stats          *metrics.Stats
}

// Acceptor owns the listening socket: it accepts local connections,
// drives a nonblocking outbound connect to the configured remote, and
// constructs a Pair once both sockets are ready.
type Acceptor struct {
	reactor    *reactor.Reactor
	localAddr  *net.TCPAddr
	remoteAddr *net.TCPAddr
	opts       Options
	logger     *slog.Logger

	// creationListener/deletionListener are delivered on the reactor
	// thread exactly once per pair, matching spec.md §6.
	creationListener func(*Pair)
	deletionListener func(*Pair)

	listenFD  int
	listenReg *reactor.Registration
}

// NewAcceptor binds localAddr and registers it with the reactor for
// ACCEPT readiness.
func NewAcceptor(
	r *reactor.Reactor,
	localAddr, remoteAddr *net.TCPAddr,
	opts Options,
	logger *slog.Logger,
	creationListener, deletionListener func(*Pair),
) (*Acceptor, error) {
	fd, err := listen(localAddr, opts.Backlog)
	if err != nil {
		return nil, err
	}
	a := &Acceptor{
		reactor:          r,
		localAddr:        localAddr,
		remoteAddr:       remoteAddr,
		opts:             opts,
		logger:           logger,
		creationListener: creationListener,
		deletionListener: deletionListener,
		listenFD:         fd,
	}
	reg, err := r.Register(fd, reactor.Accept, a.onAcceptReady)
	if err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	a.listenReg = reg
	return a, nil
}

// Close stops accepting new connections. Existing pairs are unaffected.
func (a *Acceptor) Close() {
	a.listenReg.Cancel()
	_ = closeFD(a.listenFD)
}

func (a *Acceptor) onAcceptReady(reactor.Interest) {
	for {
		fd, remote, ok, err := acceptOne(a.listenFD)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("tcpproxy: accept failure", "local", a.localAddr, "err", err)
			}
			if a.opts.Stats != nil {
				a.opts.Stats.RecordAcceptFailure()
			}
			return
		}
		if !ok {
			return
		}
		a.beginConnect(fd, remote)
	}
}

func (a *Acceptor) beginConnect(clientFD int, clientAddr *net.TCPAddr) {
	if err := setOptions(clientFD, a.opts.KeepAlive, a.opts.NoDelay, a.opts.RcvBufferSize, a.opts.SndBufferSize); err != nil {
		if a.logger != nil {
			a.logger.Warn("tcpproxy: setting client socket options failed", "err", err)
		}
		_ = closeFD(clientFD)
		return
	}

	remoteFD, connected, err := dial(a.remoteAddr)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("tcpproxy: outbound connect failed", "remote", a.remoteAddr, "err", err)
		}
		if a.opts.Stats != nil {
			a.opts.Stats.RecordConnectFailure()
		}
		_ = closeFD(clientFD)
		return
	}
	if err := setOptions(remoteFD, a.opts.KeepAlive, a.opts.NoDelay, a.opts.RcvBufferSize, a.opts.SndBufferSize); err != nil {
		_ = closeFD(clientFD)
		_ = closeFD(remoteFD)
		return
	}

	if connected {
		a.completePair(clientFD, remoteFD, clientAddr)
		return
	}

	pc := &pendingConnect{acceptor: a, clientFD: clientFD, remoteFD: remoteFD, clientAddr: clientAddr}
	reg, err := a.reactor.Register(remoteFD, reactor.Connect, pc.onConnectEvent)
	if err != nil {
		_ = closeFD(clientFD)
		_ = closeFD(remoteFD)
		return
	}
	pc.reg = reg
	if a.opts.ConnectTimeout > 0 {
		pc.timeout = a.reactor.Schedule(a.opts.ConnectTimeout, pc.onTimeout)
	}
}

func (a *Acceptor) completePair(clientFD, remoteFD int, clientAddr *net.TCPAddr) {
	pair, err := NewPair(a.reactor, clientFD, remoteFD, clientAddr, a.remoteAddr,
		a.opts.BufferCount, a.opts.BufferSize, a.logger, a.opts.Stats, a.deletionListener)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("tcpproxy: pair construction failed", "err", err)
		}
		return
	}
	if a.creationListener != nil {
		a.creationListener(pair)
	}
}

// pendingConnect tracks one in-flight outbound connect: either the
// CONNECT-ready callback or the timeout fires first, and whichever does
// marks done so the other is a no-op.
type pendingConnect struct {
	acceptor   *Acceptor
	clientFD   int
	remoteFD   int
	clientAddr *net.TCPAddr
	reg        *reactor.Registration
	timeout    reactor.Cancellable
	done       atomic.Bool
}

func (pc *pendingConnect) onConnectEvent(reactor.Interest) {
	if !pc.done.CompareAndSwap(false, true) {
		return
	}
	if pc.timeout != nil {
		pc.timeout.Cancel()
	}
	pc.reg.Cancel()

	if err := finishConnect(pc.remoteFD); err != nil {
		if pc.acceptor.logger != nil {
			pc.acceptor.logger.Warn("tcpproxy: outbound connect failed", "remote", pc.acceptor.remoteAddr, "err", err)
		}
		if pc.acceptor.opts.Stats != nil {
			pc.acceptor.opts.Stats.RecordConnectFailure()
		}
		_ = closeFD(pc.clientFD)
		_ = closeFD(pc.remoteFD)
		return
	}
	pc.acceptor.completePair(pc.clientFD, pc.remoteFD, pc.clientAddr)
}

func (pc *pendingConnect) onTimeout() {
	if !pc.done.CompareAndSwap(false, true) {
		return
	}
	pc.reg.Cancel()
	if pc.acceptor.logger != nil {
		pc.acceptor.logger.Warn("tcpproxy: outbound connect timed out", "remote", pc.acceptor.remoteAddr)
	}
	if pc.acceptor.opts.Stats != nil {
		pc.acceptor.opts.Stats.RecordConnectFailure()
	}
	_ = closeFD(pc.clientFD)
	_ = closeFD(pc.remoteFD)
}
