package tcpproxy

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hydracrusher/crusher/internal/bufq"
	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
)

// State is a Pair's position in the half-close state machine of §4.4.
type State int32

const (
	StateOpen State = iota
	StateInnerEOF
	StateOuterEOF
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateInnerEOF:
		return "inner_eof"
	case StateOuterEOF:
		return "outer_eof"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pair binds an accepted local ("inner") socket to a connected remote
// ("outer") socket through two Transfers, and drives the half-close state
// machine described in the design's TCP Pair section. All state mutation
// happens on the reactor thread; Freeze/Unfreeze/Close post there from
// whatever goroutine calls them.
type Pair struct {
	id       string
	reactor  *reactor.Reactor
	logger   *slog.Logger
	stats    *metrics.Stats
	onClosed func(*Pair)

	innerFD, outerFD     int
	innerAddr, outerAddr *net.TCPAddr
	innerReg, outerReg   *reactor.Registration
	innerTransfer        *Transfer
	outerTransfer        *Transfer

	innerClosed atomic.Bool
	outerClosed atomic.Bool
	frozen      atomic.Bool
	state       atomic.Int32
}

// NewPair wires two already-connected sockets into a bridged pair and
// registers both with the reactor. Both sockets and their registrations
// are closed/cancelled on any construction failure.
func NewPair(
	r *reactor.Reactor,
	innerFD, outerFD int,
	innerAddr, outerAddr *net.TCPAddr,
	bufferCount, bufferSize int,
	logger *slog.Logger,
	stats *metrics.Stats,
	onClosed func(*Pair),
) (*Pair, error) {
	p := &Pair{
		id:        uuid.NewString(),
		reactor:   r,
		logger:    logger,
		stats:     stats,
		onClosed:  onClosed,
		innerFD:   innerFD,
		outerFD:   outerFD,
		innerAddr: innerAddr,
		outerAddr: outerAddr,
	}

	innerQueue := bufq.New(bufferCount, bufferSize)
	outerQueue := bufq.New(bufferCount, bufferSize)
	p.innerTransfer = newTransfer("inner->outer", innerFD, innerQueue, logger)
	p.outerTransfer = newTransfer("outer->inner", outerFD, outerQueue, logger)

	innerReg, err := r.Register(innerFD, reactor.Read, p.onInnerEvent)
	if err != nil {
		_ = closeFD(innerFD)
		_ = closeFD(outerFD)
		return nil, err
	}
	outerReg, err := r.Register(outerFD, reactor.Read, p.onOuterEvent)
	if err != nil {
		innerReg.Cancel()
		_ = closeFD(innerFD)
		_ = closeFD(outerFD)
		return nil, err
	}

	p.innerReg, p.outerReg = innerReg, outerReg
	var onInnerRead, onOuterRead func(int)
	if stats != nil {
		onInnerRead = stats.RecordBytesIn
		onOuterRead = stats.RecordBytesOut
		stats.RecordPairOpened()
	}
	p.innerTransfer.wire(innerReg, outerReg, outerQueue, onInnerRead)
	p.outerTransfer.wire(outerReg, innerReg, innerQueue, onOuterRead)

	if logger != nil {
		logger.Debug("tcpproxy: pair opened", "pair", p.id, "client", innerAddr, "remote", outerAddr)
	}
	return p, nil
}

// ID returns the pair's opaque identifier.
func (p *Pair) ID() string { return p.id }

// State returns the pair's current position in the half-close machine.
func (p *Pair) State() State { return State(p.state.Load()) }

// IsFrozen reports whether Freeze has been applied without a matching Unfreeze.
func (p *Pair) IsFrozen() bool { return p.frozen.Load() }

// InnerAddr returns the accepted client address.
func (p *Pair) InnerAddr() *net.TCPAddr { return p.innerAddr }

// OuterAddr returns the connected remote address.
func (p *Pair) OuterAddr() *net.TCPAddr { return p.outerAddr }

func (p *Pair) onInnerEvent(events reactor.Interest) {
	if p.State() == StateClosed {
		return
	}
	if events.Has(reactor.Read) {
		p.afterRead(true, p.innerTransfer.OnReadable())
	}
	if p.State() == StateClosed {
		return
	}
	if events.Has(reactor.Write) {
		p.afterWrite(true, p.innerTransfer.OnWritable())
	}
}

func (p *Pair) onOuterEvent(events reactor.Interest) {
	if p.State() == StateClosed {
		return
	}
	if events.Has(reactor.Read) {
		p.afterRead(false, p.outerTransfer.OnReadable())
	}
	if p.State() == StateClosed {
		return
	}
	if events.Has(reactor.Write) {
		p.afterWrite(false, p.outerTransfer.OnWritable())
	}
}

func (p *Pair) afterRead(isInner bool, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrEOF) {
		p.onEOF(isInner)
		return
	}
	p.fail(err)
}

func (p *Pair) afterWrite(isInner bool, err error) {
	if err != nil {
		p.fail(err)
		return
	}
	// A write on the inner socket drains bytes that originated on the
	// outer side; once that queue is empty and outer already reached
	// EOF, the pair is fully drained and can close.
	if isInner && p.State() == StateOuterEOF && !p.outerTransfer.PendingOutgoing() {
		p.closeInner()
		p.transitionClosed()
		return
	}
	if !isInner && p.State() == StateInnerEOF && !p.innerTransfer.PendingOutgoing() {
		p.closeOuter()
		p.transitionClosed()
	}
}

func (p *Pair) onEOF(isInner bool) {
	if isInner {
		p.closeInner()
		if p.State() == StateOuterEOF || !p.innerTransfer.PendingOutgoing() {
			p.closeOuter()
			p.transitionClosed()
			return
		}
		p.state.Store(int32(StateInnerEOF))
		return
	}
	p.closeOuter()
	if p.State() == StateInnerEOF || !p.outerTransfer.PendingOutgoing() {
		p.closeInner()
		p.transitionClosed()
		return
	}
	p.state.Store(int32(StateOuterEOF))
}

func (p *Pair) fail(err error) {
	if p.logger != nil {
		p.logger.Debug("tcpproxy: pair I/O failure", "pair", p.id, "err", err)
	}
	p.closeInner()
	p.closeOuter()
	p.transitionClosed()
}

func (p *Pair) closeInner() {
	if !p.innerClosed.CompareAndSwap(false, true) {
		return
	}
	p.innerReg.Cancel()
	_ = closeFD(p.innerFD)
}

func (p *Pair) closeOuter() {
	if !p.outerClosed.CompareAndSwap(false, true) {
		return
	}
	p.outerReg.Cancel()
	_ = closeFD(p.outerFD)
}

func (p *Pair) transitionClosed() {
	if !p.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) &&
		!p.state.CompareAndSwap(int32(StateInnerEOF), int32(StateClosed)) &&
		!p.state.CompareAndSwap(int32(StateOuterEOF), int32(StateClosed)) {
		return
	}
	p.closeInner()
	p.closeOuter()
	if p.logger != nil {
		p.logger.Debug("tcpproxy: pair closed", "pair", p.id)
	}
	if p.stats != nil {
		p.stats.RecordPairClosed()
	}
	if p.onClosed != nil {
		p.onClosed(p)
	}
}

// Close tears the pair down unconditionally. Idempotent, safe from any
// goroutine; the actual work is posted to the reactor thread.
func (p *Pair) Close() {
	p.reactor.Execute(func() {
		p.closeInner()
		p.closeOuter()
		p.transitionClosed()
	})
}

// Freeze clears READ and WRITE interest on both sockets, leaving buffered
// bytes and both sockets intact. Idempotent; posted to the reactor thread.
func (p *Pair) Freeze() {
	p.reactor.Execute(func() {
		if p.frozen.Load() || p.State() == StateClosed {
			return
		}
		p.frozen.Store(true)
		p.innerReg.ModifyInterest(0, reactor.Read|reactor.Write)
		p.outerReg.ModifyInterest(0, reactor.Read|reactor.Write)
	})
}

// Unfreeze restores READ interest on both sockets and WRITE interest on
// whichever side still has a non-empty outgoing queue. Idempotent; posted
// to the reactor thread.
func (p *Pair) Unfreeze() {
	p.reactor.Execute(func() {
		if !p.frozen.Load() || p.State() == StateClosed {
			return
		}
		p.frozen.Store(false)
		p.innerReg.ModifyInterest(reactor.Read, 0)
		p.outerReg.ModifyInterest(reactor.Read, 0)
		if p.innerTransfer.PendingOutgoing() {
			p.outerReg.ModifyInterest(reactor.Write, 0)
		}
		if p.outerTransfer.PendingOutgoing() {
			p.innerReg.ModifyInterest(reactor.Write, 0)
		}
	})
}
