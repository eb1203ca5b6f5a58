// Package reactor implements the single-threaded, event-driven I/O core
// described in the proxy's design: one dedicated goroutine multiplexes
// readiness across every registered nonblocking socket and runs
// FIFO-ordered tasks and one-shot scheduled work on that same goroutine.
//
// Everything that mutates reactor-owned state (buffer queues, pair state
// machines, interest masks) is expected to run on the reactor goroutine,
// either because the call originated from a callback, or because it was
// posted via Execute/ModifyInterest from another goroutine. No reactor
// type in this package needs its own mutex for steady-state I/O; cross-
// thread entry points serialize through the task queue instead.
package reactor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reactor owns one poller and one FIFO task queue. Construct with New,
// start the loop with Run (blocks until Close), and interact with it from
// any goroutine via Register/Execute/Schedule/Wakeup.
type Reactor struct {
	poller *poller
	logger *slog.Logger

	mu   sync.Mutex
	regs map[int]*Registration
	task []func()

	onLoop atomic.Bool

	closing  atomic.Bool
	closedCh chan struct{}
}

// New creates a Reactor. The returned Reactor is inert until Run is
// called; Run normally runs in its own goroutine (`go r.Run()`).
func New(logger *slog.Logger) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		poller:   p,
		logger:   logger,
		regs:     make(map[int]*Registration),
		closedCh: make(chan struct{}),
	}, nil
}

// Register creates a Registration for fd with the given initial interest
// and callback, and arms it on the poller. Safe to call from any
// goroutine; epoll_ctl is safe for concurrent use and the registration
// map is guarded by a mutex.
func (r *Reactor) Register(fd int, initial Interest, cb Callback) (*Registration, error) {
	reg := &Registration{fd: fd, callback: cb, reactor: r, interest: initial}

	r.mu.Lock()
	r.regs[fd] = reg
	r.mu.Unlock()

	if err := r.poller.add(fd, initial); err != nil {
		r.mu.Lock()
		delete(r.regs, fd)
		r.mu.Unlock()
		return nil, err
	}
	return reg, nil
}

func (r *Reactor) unregister(reg *Registration) {
	r.mu.Lock()
	delete(r.regs, reg.fd)
	r.mu.Unlock()
	_ = r.poller.remove(reg.fd)
}

// Execute runs task on the reactor thread, FIFO, before the next poll.
// Safe to call from any goroutine.
func (r *Reactor) Execute(task func()) {
	r.mu.Lock()
	r.task = append(r.task, task)
	r.mu.Unlock()
	r.poller.wakeup()
}

// Cancellable is returned by Schedule; Cancel is idempotent and safe to
// call even after the task has already fired.
type Cancellable interface {
	Cancel()
}

type scheduledTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (s *scheduledTask) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.timer.Stop()
	}
}

// Schedule arranges for task to run once on the reactor thread after
// delay. The timer itself fires on a cooperating Go runtime timer
// goroutine, which immediately hands off to the reactor thread via
// Execute; task never runs concurrently with the reactor loop.
func (r *Reactor) Schedule(delay time.Duration, task func()) Cancellable {
	st := &scheduledTask{}
	st.timer = time.AfterFunc(delay, func() {
		if st.cancelled.Load() {
			return
		}
		r.Execute(func() {
			if !st.cancelled.Load() {
				task()
			}
		})
	})
	return st
}

// Wakeup forces the multiplexer out of a blocking poll even with no
// pending task or ready registration. Execute already implies a wakeup,
// and a descriptor added by Register is picked up by a poll already in
// progress without one; exposed for callers that want to force a loop
// tick.
func (r *Reactor) Wakeup() {
	r.poller.wakeup()
}

// Run executes the multiplexing loop until Close is called. It should be
// invoked from exactly one goroutine for the lifetime of the Reactor.
func (r *Reactor) Run() {
	var ready []readyFD
	for !r.closing.Load() {
		var err error
		ready, err = r.poller.wait(-1, ready[:0])
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("reactor: poll error", "err", err)
			}
			continue
		}

		r.onLoop.Store(true)
		r.runPendingTasks()
		r.dispatchReady(ready)
		r.onLoop.Store(false)
	}
	_ = r.poller.close()
	close(r.closedCh)
}

func (r *Reactor) runPendingTasks() {
	r.mu.Lock()
	pending := r.task
	r.task = nil
	r.mu.Unlock()

	for _, t := range pending {
		r.runIsolated(func() { t() })
	}
}

func (r *Reactor) dispatchReady(ready []readyFD) {
	for _, rf := range ready {
		r.mu.Lock()
		reg := r.regs[rf.fd]
		r.mu.Unlock()
		if reg == nil {
			continue
		}
		events := rf.events
		r.runIsolated(func() {
			defer func() {
				if rec := recover(); rec != nil {
					reg.Cancel()
					panic(rec)
				}
			}()
			reg.dispatch(events)
		})
	}
}

// runIsolated invokes fn, recovering and logging any panic so that one
// misbehaving flow can never take down the shared reactor goroutine. Fatal
// I/O errors are ordinary return-path handling inside callbacks (§7); this
// guards only against programmer error (nil deref, index out of range).
func (r *Reactor) runIsolated(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("reactor: callback panic recovered", "panic", rec)
			}
		}
	}()
	fn()
}

// Close stops the loop after the current (or next, if idle) tick and
// waits for it to exit.
func (r *Reactor) Close() {
	if !r.closing.CompareAndSwap(false, true) {
		<-r.closedCh
		return
	}
	r.poller.wakeup()
	<-r.closedCh
}
