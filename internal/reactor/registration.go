package reactor

import "sync"

// Callback is invoked on the reactor thread whenever any interest bit a
// Registration asked for becomes ready. events is the subset of the
// registration's current interest that fired.
type Callback func(events Interest)

// Registration associates a nonblocking file descriptor with an interest
// mask and a callback. It is created by Reactor.Register, mutated only by
// the reactor thread (directly, or via a posted task for cross-thread
// callers), and destroyed by Cancel.
type Registration struct {
	fd       int
	callback Callback
	reactor  *Reactor

	mu        sync.Mutex
	interest  Interest
	cancelled bool
}

// FD returns the registration's underlying file descriptor.
func (r *Registration) FD() int { return r.fd }

// Interest returns the currently active interest mask.
func (r *Registration) Interest() Interest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interest
}

// ModifyInterest sets the bits in set and clears the bits in clear. Safe
// to call from the reactor thread (applied immediately, before this call
// returns) or from any other goroutine (posted as a task that runs before
// the next poll, then wakes the multiplexer).
func (r *Registration) ModifyInterest(set, clear Interest) {
	if r.reactor.onLoop.Load() {
		r.applyModify(set, clear)
		return
	}
	r.reactor.Execute(func() { r.applyModify(set, clear) })
}

func (r *Registration) applyModify(set, clear Interest) {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	next := (r.interest | set) &^ clear
	changed := next != r.interest
	r.interest = next
	r.mu.Unlock()

	if changed {
		_ = r.reactor.poller.modify(r.fd, next)
	}
}

// Cancel removes the registration from the poller. Idempotent. It does
// not close fd; the owner closes its own socket.
func (r *Registration) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	r.mu.Unlock()

	r.reactor.unregister(r)
}

func (r *Registration) dispatch(events Interest) {
	r.mu.Lock()
	cancelled := r.cancelled
	r.mu.Unlock()
	if cancelled || r.callback == nil {
		return
	}
	r.callback(events)
}
