package bufq_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/bufq"
)

func TestQueue_FillAndDrainPreservesOrder(t *testing.T) {
	q := bufq.New(4, 4)

	win, ok := q.ReserveForWrite()
	require.True(t, ok)
	n := copy(win, []byte("abcd"))
	q.CommitWritten(n)

	win, ok = q.ReserveForWrite()
	require.True(t, ok)
	n = copy(win, []byte("ef"))
	q.CommitWritten(n)

	assert.Equal(t, 6, q.PendingBytes())
	assert.LessOrEqual(t, q.PendingBuffers(), q.Capacity())

	var out []byte
	for !q.Empty() {
		win, ok := q.HeadForDrain()
		require.True(t, ok)
		out = append(out, win...)
		q.AdvanceHead(len(win))
	}
	assert.Equal(t, "abcdef", string(out))
	assert.Equal(t, 0, q.PendingBytes())
}

func TestQueue_FullWhenAllBuffersOccupied(t *testing.T) {
	q := bufq.New(2, 2)

	for range 2 {
		win, ok := q.ReserveForWrite()
		require.True(t, ok)
		q.CommitWritten(copy(win, []byte("xx")))
	}

	_, ok := q.ReserveForWrite()
	assert.False(t, ok, "queue should report full once capacity is exhausted")
	assert.True(t, q.Full())
}

func TestQueue_ByteAtATimePipelining(t *testing.T) {
	// bufferCount=1, bufferSize=1: the boundary case from the spec's
	// testable properties. A buffer can be the tail and the head at once.
	q := bufq.New(1, 1)
	payload := []byte("hello, world")
	var out []byte

	for _, b := range payload {
		win, ok := q.ReserveForWrite()
		require.True(t, ok)
		win[0] = b
		q.CommitWritten(1)

		dwin, ok := q.HeadForDrain()
		require.True(t, ok)
		out = append(out, dwin...)
		q.AdvanceHead(len(dwin))
	}
	assert.Equal(t, string(payload), string(out))
}

func TestQueue_AdvanceHeadDoesNotReleaseStillFillableSoleBuffer(t *testing.T) {
	q := bufq.New(1, 4)

	win, ok := q.ReserveForWrite()
	require.True(t, ok)
	q.CommitWritten(copy(win, []byte("ab")))

	dwin, ok := q.HeadForDrain()
	require.True(t, ok)
	assert.Equal(t, "ab", string(dwin))
	q.AdvanceHead(len(dwin))

	// Buffer isn't full, so it must still be writable in place.
	win, ok = q.ReserveForWrite()
	require.True(t, ok)
	assert.Equal(t, 2, len(win), "expected the remaining 2 bytes of capacity in the same buffer")
}

func TestQueue_PendingCountsOnlyNonEmptyBuffers(t *testing.T) {
	q := bufq.New(3, 4)
	win, _ := q.ReserveForWrite()
	q.CommitWritten(copy(win, []byte("ab")))

	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 1, q.PendingBuffers())
}
