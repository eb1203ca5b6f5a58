package udpproxy

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
)

// Outer is the proxy's upstream socket dedicated to one observed source
// address. Its lifetime is 1:1 with that source: Inner creates one the
// first time a source is seen and destroys it on idle eviction or fatal
// I/O error.
type Outer struct {
	inner   *Inner
	source  *net.UDPAddr
	reactor *reactor.Reactor
	logger  *slog.Logger
	stats   *metrics.Stats

	fd      int
	reg     *reactor.Registration
	pending *pendingQueue

	lastOpNanos atomic.Int64
	closed      atomic.Bool
}

func newOuter(r *reactor.Reactor, inner *Inner, source, remote *net.UDPAddr, rcvBuf, sndBuf, pendingLimit int, logger *slog.Logger, stats *metrics.Stats) (*Outer, error) {
	fd, err := newConnectedSocket(remote, rcvBuf, sndBuf)
	if err != nil {
		return nil, err
	}
	o := &Outer{
		inner:   inner,
		source:  source,
		reactor: r,
		logger:  logger,
		stats:   stats,
		fd:      fd,
		pending: newPendingQueue(pendingLimit),
	}
	reg, err := r.Register(fd, reactor.Read, o.onEvent)
	if err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	o.reg = reg
	o.touch()
	return o, nil
}

func (o *Outer) touch() { o.lastOpNanos.Store(time.Now().UnixNano()) }

// LastActivity returns the timestamp of the most recent successful read
// or write on the upstream socket.
func (o *Outer) LastActivity() time.Time { return time.Unix(0, o.lastOpNanos.Load()) }

// Source returns the client address this Outer was created for.
func (o *Outer) Source() *net.UDPAddr { return o.source }

func (o *Outer) onEvent(events reactor.Interest) {
	if events.Has(reactor.Read) {
		o.onReadable()
	}
	if o.closed.Load() {
		return
	}
	if events.Has(reactor.Write) {
		o.onWritable()
	}
}

// onReadable receives one datagram from the remote and hands it to Inner
// to relay back to the originating client.
func (o *Outer) onReadable() {
	bufPtr := readBufPool.Get()
	defer readBufPool.Put(bufPtr)
	n, err := readConn(o.fd, *bufPtr)
	if err != nil {
		if errors.Is(err, errAgain) {
			return
		}
		if o.logger != nil {
			o.logger.Warn("udpproxy: outer read failed", "source", o.source, "err", err)
		}
		o.Close()
		return
	}
	o.touch()
	payload := append([]byte(nil), (*bufPtr)[:n]...)
	o.inner.routeReply(o.source, payload)
}

// onWritable drains a single queued payload toward the remote, per the
// design's one-write-per-readiness-event semantics for UDP.
func (o *Outer) onWritable() {
	d, ok := o.pending.peek()
	if !ok {
		o.reg.ModifyInterest(0, reactor.Write)
		return
	}
	n, err := writeConn(o.fd, d.payload)
	if err != nil {
		if errors.Is(err, errAgain) {
			return
		}
		if o.logger != nil {
			o.logger.Warn("udpproxy: outer write failed", "source", o.source, "err", err)
		}
		o.Close()
		return
	}
	o.touch()
	if o.stats != nil {
		o.stats.RecordPacketOut()
	}
	if n >= len(d.payload) {
		o.pending.pop()
	}
	if o.pending.len() == 0 {
		o.reg.ModifyInterest(0, reactor.Write)
	}
}

// send enqueues a client->remote payload, dropping it if PENDING_LIMIT is
// already reached.
func (o *Outer) send(payload []byte) {
	if !o.pending.push(datagram{payload: payload}) {
		if o.logger != nil {
			o.logger.Warn("udpproxy: dropping outbound packet, pending limit reached", "source", o.source)
		}
		if o.stats != nil {
			o.stats.RecordPacketDrop()
		}
		return
	}
	o.reg.ModifyInterest(reactor.Write, 0)
}

// Close tears down the upstream socket and removes this Outer from
// Inner's map.
func (o *Outer) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.rawClose()
	o.inner.removeOuter(o.source)
}

// rawClose releases the socket without touching Inner's map; used by
// Inner.Close when it is about to clear the whole map itself.
func (o *Outer) rawClose() {
	o.reg.Cancel()
	_ = closeFD(o.fd)
}
