package udpproxy

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
)

// Inner is the proxy's local bound socket: it receives from arbitrary
// clients, fans each source address out to a dedicated Outer, and writes
// queued replies back to their originating sources.
type Inner struct {
	reactor *reactor.Reactor
	logger  *slog.Logger
	stats   *metrics.Stats

	local, remote *net.UDPAddr
	rcvBuf, sndBuf int
	pendingLimit   int
	maxIdle        time.Duration

	fd      int
	reg     *reactor.Registration
	pending *pendingQueue

	// outersMu guards outers. Every reactor-thread callback (onReadable,
	// removeOuter, sweep, Freeze, Unfreeze, Close) already runs serialized
	// on the reactor goroutine, but Snapshot is called directly from
	// foreign goroutines (the admin API, tests), so the map needs its own
	// lock rather than relying on reactor-thread serialization alone.
	outersMu sync.Mutex
	outers   map[string]*Outer

	closed atomic.Bool
	frozen atomic.Bool
}

// NewInner binds local and prepares to fan datagrams out toward remote.
func NewInner(r *reactor.Reactor, local, remote *net.UDPAddr, rcvBuf, sndBuf, pendingLimit int, maxIdle time.Duration, logger *slog.Logger, stats *metrics.Stats) (*Inner, error) {
	fd, err := newBoundSocket(local, rcvBuf, sndBuf)
	if err != nil {
		return nil, err
	}
	in := &Inner{
		reactor:      r,
		logger:       logger,
		stats:        stats,
		local:        local,
		remote:       remote,
		rcvBuf:       rcvBuf,
		sndBuf:       sndBuf,
		pendingLimit: pendingLimit,
		maxIdle:      maxIdle,
		fd:           fd,
		outers:       make(map[string]*Outer),
		pending:      newPendingQueue(pendingLimit),
	}
	reg, err := r.Register(fd, reactor.Read, in.onEvent)
	if err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	in.reg = reg
	return in, nil
}

func (in *Inner) onEvent(events reactor.Interest) {
	if events.Has(reactor.Read) {
		in.onReadable()
	}
	if in.closed.Load() {
		return
	}
	if events.Has(reactor.Write) {
		in.onWritable()
	}
}

// onReadable receives one datagram, routing it to the Outer for its
// source address (creating one, and running the idle sweep first, if
// this source hasn't been seen before).
func (in *Inner) onReadable() {
	bufPtr := readBufPool.Get()
	defer readBufPool.Put(bufPtr)
	n, from, ok, err := recvFrom(in.fd, *bufPtr)
	if err != nil {
		if in.logger != nil {
			in.logger.Warn("udpproxy: inner read failed", "local", in.local, "err", err)
		}
		return
	}
	if !ok {
		return
	}
	buf := *bufPtr
	if in.stats != nil {
		in.stats.RecordPacketIn()
	}

	key := from.String()
	in.outersMu.Lock()
	outer, exists := in.outers[key]
	in.outersMu.Unlock()
	if !exists {
		if in.maxIdle > 0 {
			in.sweep()
		}
		outer, err = newOuter(in.reactor, in, from, in.remote, in.rcvBuf, in.sndBuf, in.pendingLimit, in.logger, in.stats)
		if err != nil {
			if in.logger != nil {
				in.logger.Warn("udpproxy: failed to create outer", "source", from, "err", err)
			}
			return
		}
		in.outersMu.Lock()
		in.outers[key] = outer
		in.outersMu.Unlock()
		if in.stats != nil {
			in.stats.RecordOuterOpened()
		}
		if in.logger != nil {
			in.logger.Debug("udpproxy: outer created", "source", from, "remote", in.remote)
		}
	}

	payload := append([]byte(nil), buf[:n]...)
	outer.send(payload)
}

// onWritable drains a single queued reply toward its originating client.
func (in *Inner) onWritable() {
	d, ok := in.pending.peek()
	if !ok {
		in.reg.ModifyInterest(0, reactor.Write)
		return
	}
	n, err := sendTo(in.fd, d.payload, d.addr)
	if err != nil {
		if err == errAgain {
			return
		}
		if in.logger != nil {
			in.logger.Warn("udpproxy: inner write failed", "dest", d.addr, "err", err)
		}
		in.pending.pop()
		if in.pending.len() == 0 {
			in.reg.ModifyInterest(0, reactor.Write)
		}
		return
	}
	if in.stats != nil {
		in.stats.RecordPacketOut()
	}
	if n >= len(d.payload) {
		in.pending.pop()
	}
	if in.pending.len() == 0 {
		in.reg.ModifyInterest(0, reactor.Write)
	}
}

// routeReply is called by an Outer (on the reactor thread) to hand back
// a reply destined for the client at dest.
func (in *Inner) routeReply(dest *net.UDPAddr, payload []byte) {
	if !in.pending.push(datagram{addr: dest, payload: payload}) {
		if in.logger != nil {
			in.logger.Warn("udpproxy: dropping inbound reply, pending limit reached", "dest", dest)
		}
		if in.stats != nil {
			in.stats.RecordPacketDrop()
		}
		return
	}
	in.reg.ModifyInterest(reactor.Write, 0)
}

// removeOuter deletes source from the live map; called by Outer.Close.
func (in *Inner) removeOuter(source *net.UDPAddr) {
	in.outersMu.Lock()
	delete(in.outers, source.String())
	in.outersMu.Unlock()
}

// sweep evicts every Outer whose idle duration exceeds maxIdle. Eviction
// targets are collected before any Close() call so the map is never
// mutated while being ranged over.
func (in *Inner) sweep() {
	in.outersMu.Lock()
	stale := sweepIdle(in.outers, time.Now(), in.maxIdle)
	in.outersMu.Unlock()
	for _, o := range stale {
		if in.logger != nil {
			in.logger.Debug("udpproxy: outer evicted for idleness", "source", o.Source())
		}
		if in.stats != nil {
			in.stats.RecordOuterEvicted()
		}
		o.Close()
	}
}

// OuterSnapshot describes one live Outer for introspection.
type OuterSnapshot struct {
	Source *net.UDPAddr
	Idle   time.Duration
}

// Snapshot returns a point-in-time view of every live Outer. Unlike the
// reactor-thread callbacks above, this is called directly from foreign
// goroutines (the admin API, tests), hence the explicit lock.
func (in *Inner) Snapshot() []OuterSnapshot {
	now := time.Now()
	in.outersMu.Lock()
	defer in.outersMu.Unlock()
	out := make([]OuterSnapshot, 0, len(in.outers))
	for _, o := range in.outers {
		out = append(out, OuterSnapshot{Source: o.Source(), Idle: now.Sub(o.LastActivity())})
	}
	return out
}

// IsFrozen reports whether Freeze has been applied without a matching
// Unfreeze.
func (in *Inner) IsFrozen() bool { return in.frozen.Load() }

// Freeze suspends all relaying: READ and WRITE interest are cleared on
// the bound socket and on every live Outer, leaving pending queues and
// sockets intact.
func (in *Inner) Freeze() {
	if !in.frozen.CompareAndSwap(false, true) {
		return
	}
	in.reg.ModifyInterest(0, reactor.Read|reactor.Write)
	in.outersMu.Lock()
	defer in.outersMu.Unlock()
	for _, o := range in.outers {
		o.reg.ModifyInterest(0, reactor.Read|reactor.Write)
	}
}

// Unfreeze restores READ interest on the bound socket and every live
// Outer, and WRITE interest wherever a pending queue is non-empty.
func (in *Inner) Unfreeze() {
	if !in.frozen.CompareAndSwap(true, false) {
		return
	}
	in.reg.ModifyInterest(reactor.Read, 0)
	if in.pending.len() > 0 {
		in.reg.ModifyInterest(reactor.Write, 0)
	}
	in.outersMu.Lock()
	defer in.outersMu.Unlock()
	for _, o := range in.outers {
		o.reg.ModifyInterest(reactor.Read, 0)
		if o.pending.len() > 0 {
			o.reg.ModifyInterest(reactor.Write, 0)
		}
	}
}

// Close shuts down the local socket and every live Outer.
func (in *Inner) Close() {
	if !in.closed.CompareAndSwap(false, true) {
		return
	}
	in.reg.Cancel()
	_ = closeFD(in.fd)
	in.outersMu.Lock()
	defer in.outersMu.Unlock()
	for _, o := range in.outers {
		o.closed.Store(true)
		o.rawClose()
	}
	in.outers = make(map[string]*Outer)
}
