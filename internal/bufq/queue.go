// Package bufq implements the bounded ring of fixed-size buffers used as
// the single-producer / single-consumer pipe between the read side of one
// socket and the write side of its peer in a TCP pair.
//
// A Queue is not safe for concurrent use by design: it has exactly one
// reader (the transfer that owns it as its outgoing pipe) and one writer
// (the peer transfer), both of which only ever run on the reactor
// goroutine.
package bufq

// chunk is one ring slot: a reusable byte buffer plus read/write cursors.
// w is how much of buf has been filled by the producer; r is how much of
// that has been drained by the consumer. r <= w <= len(buf) always.
type chunk struct {
	buf []byte
	w   int
	r   int
}

// Queue is a fixed-capacity sequence of byte buffers with a tail cursor
// (the buffer currently being filled) and a head cursor (the buffer
// currently being drained).
type Queue struct {
	bufferSize int
	free       []*chunk // chunks not currently holding data, LIFO stack
	pending    []*chunk // chunks holding data, oldest (head) first
}

// New creates a Queue of bufferCount buffers of bufferSize bytes each.
func New(bufferCount, bufferSize int) *Queue {
	if bufferCount < 1 {
		bufferCount = 1
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	q := &Queue{
		bufferSize: bufferSize,
		free:       make([]*chunk, 0, bufferCount),
	}
	for range bufferCount {
		q.free = append(q.free, &chunk{buf: make([]byte, bufferSize)})
	}
	return q
}

// Capacity returns the configured buffer count.
func (q *Queue) Capacity() int { return cap(q.free) }

// ReserveForWrite returns a writable window into the tail buffer: the
// partially-filled tail if it still has room, otherwise a fresh buffer
// from the free pool. ok is false when the queue is full (no free buffer
// and the tail is already at capacity); the caller must stop reading and
// wait for a drain.
func (q *Queue) ReserveForWrite() (window []byte, ok bool) {
	if n := len(q.pending); n > 0 {
		tail := q.pending[n-1]
		if tail.w < len(tail.buf) {
			return tail.buf[tail.w:], true
		}
	}
	if len(q.free) == 0 {
		return nil, false
	}
	c := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]
	c.w, c.r = 0, 0
	q.pending = append(q.pending, c)
	return c.buf, true
}

// CommitWritten records that n bytes were written into the window most
// recently returned by ReserveForWrite, advancing the tail cursor.
func (q *Queue) CommitWritten(n int) {
	if n <= 0 || len(q.pending) == 0 {
		return
	}
	tail := q.pending[len(q.pending)-1]
	tail.w += n
	if tail.w > len(tail.buf) {
		tail.w = len(tail.buf)
	}
}

// HeadForDrain returns the unread portion of the oldest non-empty buffer.
// ok is false if the queue holds nothing to drain right now.
func (q *Queue) HeadForDrain() (window []byte, ok bool) {
	if len(q.pending) == 0 {
		return nil, false
	}
	h := q.pending[0]
	if h.r >= h.w {
		return nil, false
	}
	return h.buf[h.r:h.w], true
}

// AdvanceHead records that n bytes were drained from the window most
// recently returned by HeadForDrain. Once a buffer is fully drained and
// can no longer receive writes (it is full, or a newer tail buffer exists
// behind it), it is returned to the free pool.
func (q *Queue) AdvanceHead(n int) {
	if len(q.pending) == 0 || n <= 0 {
		return
	}
	h := q.pending[0]
	h.r += n
	if h.r > h.w {
		h.r = h.w
	}
	if h.r < h.w {
		return
	}
	if len(q.pending) == 1 && h.w < len(h.buf) {
		// Still the sole (tail == head) buffer and not yet full: the
		// producer may still write more into it.
		return
	}
	q.pending = q.pending[1:]
	q.free = append(q.free, h)
}

// PendingBuffers returns the number of buffers currently held by the
// queue (full or partially filled); always <= Capacity().
func (q *Queue) PendingBuffers() int { return len(q.pending) }

// Pending returns the number of non-empty buffers.
func (q *Queue) Pending() int {
	n := 0
	for _, c := range q.pending {
		if c.w > c.r {
			n++
		}
	}
	return n
}

// PendingBytes returns the total unread byte count across all buffers.
func (q *Queue) PendingBytes() int {
	total := 0
	for _, c := range q.pending {
		total += c.w - c.r
	}
	return total
}

// Full reports whether ReserveForWrite would currently fail.
func (q *Queue) Full() bool {
	if n := len(q.pending); n > 0 {
		if q.pending[n-1].w < len(q.pending[n-1].buf) {
			return false
		}
	}
	return len(q.free) == 0
}

// Empty reports whether HeadForDrain would currently fail.
func (q *Queue) Empty() bool {
	return q.Pending() == 0
}
