package tcpproxy

import (
	"errors"
	"log/slog"

	"github.com/hydracrusher/crusher/internal/bufq"
	"github.com/hydracrusher/crusher/internal/reactor"
)

// ErrEOF is returned by Transfer.OnReadable when the peer closed its write
// half. It is not a fatal error: §4.4 treats it as cooperative half-close.
var ErrEOF = errors.New("tcpproxy: read side reached EOF")

// Transfer relays bytes in one direction of a Pair: it reads its own
// socket into its own outgoing queue (waking the peer's WRITE interest),
// and it drains the peer's outgoing queue (its "incoming" pipe) into its
// own socket (waking the peer's READ interest once room frees up).
//
// A Transfer is bound to exactly one socket/registration for its entire
// life; the asymmetry between "my queue" and "peer's queue" is what makes
// the pair bidirectional with only two Transfer objects.
type Transfer struct {
	name   string
	fd     int
	reg    *reactor.Registration
	peer   *reactor.Registration // the OTHER transfer's registration
	logger *slog.Logger

	outgoing *bufq.Queue // this transfer's own queue; peer drains it as its incoming
	incoming *bufq.Queue // peer's outgoing queue; this transfer drains it into fd

	onBytesRead func(int) // optional metrics hook, called after each successful read
}

func newTransfer(name string, fd int, outgoing *bufq.Queue, logger *slog.Logger) *Transfer {
	return &Transfer{name: name, fd: fd, outgoing: outgoing, logger: logger}
}

// wire completes construction once both registrations and both queues
// exist: the peer registration to notify, and the peer's outgoing queue
// to drain as this transfer's incoming pipe.
func (t *Transfer) wire(reg, peerReg *reactor.Registration, incoming *bufq.Queue, onBytesRead func(int)) {
	t.reg = reg
	t.peer = peerReg
	t.incoming = incoming
	t.onBytesRead = onBytesRead
}

// OnReadable reads this socket into the outgoing queue until EAGAIN,
// until the queue fills, or until EOF. Returns ErrEOF on a cooperative
// half-close, any other non-nil error is fatal to the pair.
func (t *Transfer) OnReadable() error {
	wrote := 0
	for {
		win, ok := t.outgoing.ReserveForWrite()
		if !ok {
			t.reg.ModifyInterest(0, reactor.Read)
			break
		}
		n, err := readFD(t.fd, win)
		if err != nil {
			if errors.Is(err, errAgain) {
				break
			}
			if wrote > 0 {
				t.wake()
			}
			return err
		}
		if n == 0 {
			if wrote > 0 {
				t.wake()
			}
			return ErrEOF
		}
		t.outgoing.CommitWritten(n)
		wrote += n
		if t.onBytesRead != nil {
			t.onBytesRead(n)
		}
		if t.logger != nil {
			t.logger.Debug("tcpproxy: read", "transfer", t.name, "bytes", n)
		}
	}
	if wrote > 0 {
		t.wake()
	}
	return nil
}

// wake enables WRITE interest on the peer registration once bytes have
// landed in this transfer's outgoing queue, since the peer is the one
// that drains it.
func (t *Transfer) wake() {
	if t.peer != nil {
		t.peer.ModifyInterest(reactor.Write, 0)
	}
}

// OnWritable drains the incoming queue (the peer's outgoing queue) into
// this socket until EAGAIN or the queue empties.
func (t *Transfer) OnWritable() error {
	wasFull := t.incoming.Full()
	for {
		win, ok := t.incoming.HeadForDrain()
		if !ok {
			t.reg.ModifyInterest(0, reactor.Write)
			break
		}
		n, err := writeFD(t.fd, win)
		if err != nil {
			if errors.Is(err, errAgain) {
				break
			}
			return err
		}
		if n == 0 {
			break
		}
		t.incoming.AdvanceHead(n)
		if t.logger != nil {
			t.logger.Debug("tcpproxy: wrote", "transfer", t.name, "bytes", n)
		}
	}
	if wasFull && !t.incoming.Full() && t.peer != nil {
		t.peer.ModifyInterest(reactor.Read, 0)
	}
	return nil
}

// PendingOutgoing reports whether this transfer still has buffered bytes
// destined for the peer socket; used to decide half-close transitions.
func (t *Transfer) PendingOutgoing() bool {
	return !t.outgoing.Empty()
}
