package crusher

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hydracrusher/crusher/internal/tcpproxy"
)

// TCPPairSnapshot describes one live pair for introspection, the
// TCP counterpart of SPEC_FULL §12's "live-pair / live-outer
// introspection" feature.
type TCPPairSnapshot struct {
	ID         string
	InnerAddr  *net.TCPAddr
	OuterAddr  *net.TCPAddr
	State      tcpproxy.State
	Frozen     bool
}

// TCP is the control facade for a TCP proxy instance: it owns the
// Acceptor while open and the live set of Pairs, keyed by the accepted
// client address per spec.md §9's explicit open-question resolution.
type TCP struct {
	opts TCPOptions

	mu       sync.Mutex
	acceptor *tcpproxy.Acceptor
	pairs    map[string]*tcpproxy.Pair
	open     bool
	frozen   bool
}

// NewTCP constructs a closed TCP facade from opts. Open must be called
// before it accepts connections.
func NewTCP(opts TCPOptions) *TCP {
	return &TCP{opts: opts, pairs: make(map[string]*tcpproxy.Pair)}
}

// IsOpen reports whether the listening socket is currently bound.
func (t *TCP) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// IsFrozen reports whether Freeze has been applied without a matching
// Unfreeze.
func (t *TCP) IsFrozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// Open validates the configuration and binds the listening socket. It
// fails with ErrConfiguration if required fields are missing, and with
// ErrAlreadyOpen if already open.
func (t *TCP) Open() error {
	if err := t.opts.validate(); err != nil {
		return err
	}
	local, remote, err := t.opts.resolve()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return ErrAlreadyOpen
	}

	acceptor, err := tcpproxy.NewAcceptor(t.opts.Reactor, local, remote, t.opts.acceptorOptions(),
		t.opts.Logger, t.onPairCreated, t.onPairClosed)
	if err != nil {
		return err
	}
	t.acceptor = acceptor
	t.open = true
	t.frozen = false
	return nil
}

// onPairCreated and onPairClosed run on the reactor thread (spec.md §9's
// "Listener delivery thread"); they maintain the pair map and forward to
// the user-configured listeners.
func (t *TCP) onPairCreated(p *tcpproxy.Pair) {
	t.mu.Lock()
	t.pairs[p.InnerAddr().String()] = p
	frozen := t.frozen
	t.mu.Unlock()
	if frozen {
		p.Freeze()
	}
	if t.opts.CreationListener != nil {
		t.opts.CreationListener(p)
	}
}

func (t *TCP) onPairClosed(p *tcpproxy.Pair) {
	t.mu.Lock()
	if t.pairs[p.InnerAddr().String()] == p {
		delete(t.pairs, p.InnerAddr().String())
	}
	t.mu.Unlock()
	if t.opts.DeletionListener != nil {
		t.opts.DeletionListener(p)
	}
}

// snapshotPairs returns a concurrent-safe snapshot of the live pair map,
// per spec.md §5's "closeAllPairs iterates a concurrent snapshot of the
// pair map to avoid modification hazard".
func (t *TCP) snapshotPairs() []*tcpproxy.Pair {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*tcpproxy.Pair, 0, len(t.pairs))
	for _, p := range t.pairs {
		out = append(out, p)
	}
	return out
}

// defaultDrainTimeout bounds how long Close waits for in-flight pair
// closes to finish tearing down before returning anyway.
const defaultDrainTimeout = 2 * time.Second

// Close stops accepting new connections and closes every live pair, then
// waits (bounded by defaultDrainTimeout) for those closes to drain before
// returning. It is a no-op if already closed.
func (t *TCP) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	acceptor := t.acceptor
	t.acceptor = nil
	t.open = false
	t.mu.Unlock()

	acceptor.Close()
	for _, p := range t.snapshotPairs() {
		p.Close()
	}
	if !t.waitDrained(defaultDrainTimeout) && t.opts.Logger != nil {
		t.opts.Logger.Warn("tcp close: pairs still draining after timeout", "remaining", t.PairCount())
	}
	return nil
}

// Crush closes every live pair and reopens the listening socket,
// preserving configuration, per spec.md §6's "crush() (close then open,
// preserving configuration)".
func (t *TCP) Crush() error {
	if err := t.Close(); err != nil {
		return err
	}
	return t.Open()
}

// Freeze suspends all traffic on every live pair and on any pair created
// afterward, until Unfreeze is called. Idempotent.
func (t *TCP) Freeze() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return ErrNotOpen
	}
	t.frozen = true
	t.mu.Unlock()

	for _, p := range t.snapshotPairs() {
		p.Freeze()
	}
	return nil
}

// Unfreeze resumes traffic on every live pair. Idempotent.
func (t *TCP) Unfreeze() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return ErrNotOpen
	}
	t.frozen = false
	t.mu.Unlock()

	for _, p := range t.snapshotPairs() {
		p.Unfreeze()
	}
	return nil
}

// Snapshot returns a point-in-time view of every live pair.
func (t *TCP) Snapshot() []TCPPairSnapshot {
	pairs := t.snapshotPairs()
	out := make([]TCPPairSnapshot, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, TCPPairSnapshot{
			ID:        p.ID(),
			InnerAddr: p.InnerAddr(),
			OuterAddr: p.OuterAddr(),
			State:     p.State(),
			Frozen:    p.IsFrozen(),
		})
	}
	return out
}

// PairCount returns the number of currently live pairs.
func (t *TCP) PairCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pairs)
}

// waitDrained blocks (bounded by timeout) until no pairs remain; Close
// uses it to wait out in-flight pair teardown before returning.
func (t *TCP) waitDrained(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.PairCount() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return t.PairCount() == 0
}
