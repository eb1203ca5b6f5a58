package crusher

import (
	"fmt"
	"sync"

	"github.com/hydracrusher/crusher/internal/udpproxy"
)

// UDP is the control facade for a UDP proxy instance: it owns the
// Datagram Inner while open.
type UDP struct {
	opts UDPOptions

	mu    sync.Mutex
	inner *udpproxy.Inner
	open  bool
}

// NewUDP constructs a closed UDP facade from opts. Open must be called
// before it relays datagrams.
func NewUDP(opts UDPOptions) *UDP {
	return &UDP{opts: opts}
}

// IsOpen reports whether the bound socket is currently live.
func (u *UDP) IsOpen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.open
}

// IsFrozen reports whether Freeze has been applied without a matching
// Unfreeze.
func (u *UDP) IsFrozen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inner == nil {
		return false
	}
	return u.inner.IsFrozen()
}

// Open validates the configuration and binds the local socket. It fails
// with ErrConfiguration if required fields are missing, and with
// ErrAlreadyOpen if already open.
func (u *UDP) Open() error {
	if err := u.opts.validate(); err != nil {
		return err
	}
	local, remote, err := u.opts.resolve()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.open {
		return ErrAlreadyOpen
	}

	inner, err := udpproxy.NewInner(u.opts.Reactor, local, remote,
		u.opts.RcvBufferSize, u.opts.SndBufferSize, u.opts.PendingLimit,
		u.opts.maxIdle(), u.opts.Logger, u.opts.Stats)
	if err != nil {
		return err
	}
	u.inner = inner
	u.open = true
	return nil
}

// Close tears down the bound socket and every live Outer. No-op if
// already closed.
func (u *UDP) Close() error {
	u.mu.Lock()
	if !u.open {
		u.mu.Unlock()
		return nil
	}
	inner := u.inner
	u.inner = nil
	u.open = false
	u.mu.Unlock()

	u.opts.Reactor.Execute(inner.Close)
	return nil
}

// Crush closes and reopens the bound socket, preserving configuration.
func (u *UDP) Crush() error {
	if err := u.Close(); err != nil {
		return err
	}
	return u.Open()
}

// Freeze suspends all relaying until Unfreeze is called. Idempotent.
func (u *UDP) Freeze() error {
	u.mu.Lock()
	if !u.open {
		u.mu.Unlock()
		return ErrNotOpen
	}
	inner := u.inner
	u.mu.Unlock()

	u.opts.Reactor.Execute(inner.Freeze)
	return nil
}

// Unfreeze resumes relaying. Idempotent.
func (u *UDP) Unfreeze() error {
	u.mu.Lock()
	if !u.open {
		u.mu.Unlock()
		return ErrNotOpen
	}
	inner := u.inner
	u.mu.Unlock()

	u.opts.Reactor.Execute(inner.Unfreeze)
	return nil
}

// Snapshot returns a point-in-time view of every live Outer.
func (u *UDP) Snapshot() []udpproxy.OuterSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inner == nil {
		return nil
	}
	return u.inner.Snapshot()
}
