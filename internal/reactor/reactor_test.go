package reactor_test

import (
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/reactor"
)

func socketFD(t *testing.T, conn syscall.Conn) int {
	t.Helper()
	raw, err := conn.SyscallConn()
	require.NoError(t, err)
	var fd int
	require.NoError(t, raw.Control(func(f uintptr) { fd = int(f) }))
	return fd
}

func TestReactor_RegisterDispatchesReadReady(t *testing.T) {
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	defer r.Close()

	pr, pw, err := syscallPipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fd := socketFD(t, pr)
	var fired atomic.Bool
	reg, err := r.Register(fd, reactor.Read, func(events reactor.Interest) {
		if events.Has(reactor.Read) {
			fired.Store(true)
		}
	})
	require.NoError(t, err)
	defer reg.Cancel()

	_, err = pw.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestReactor_ExecuteRunsOnLoop(t *testing.T) {
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	defer r.Close()

	done := make(chan struct{})
	r.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestReactor_ScheduleFiresOnceAndCancelIsIdempotent(t *testing.T) {
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	defer r.Close()

	var count atomic.Int32
	c := r.Schedule(10*time.Millisecond, func() { count.Add(1) })

	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)
	c.Cancel()
	c.Cancel() // idempotent

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestReactor_ScheduleCancelBeforeFire(t *testing.T) {
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	defer r.Close()

	var fired atomic.Bool
	c := r.Schedule(50*time.Millisecond, func() { fired.Store(true) })
	c.Cancel()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRegistration_ModifyInterestFromOtherGoroutine(t *testing.T) {
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	defer r.Close()

	pr, pw, err := syscallPipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fd := socketFD(t, pr)
	reg, err := r.Register(fd, 0, func(reactor.Interest) {})
	require.NoError(t, err)
	defer reg.Cancel()

	reg.ModifyInterest(reactor.Read, 0)
	require.Eventually(t, func() bool { return reg.Interest().Has(reactor.Read) }, time.Second, time.Millisecond)
}

// syscallPipe returns a connected loopback TCP pair usable with
// SyscallConn, since os.Pipe doesn't implement syscall.Conn the way
// net.Conn does and the reactor only ever registers sockets.
func syscallPipe() (net.Conn, net.Conn, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return nil, nil, err
	}

	select {
	case c := <-acceptCh:
		return c, client, nil
	case err := <-errCh:
		client.Close()
		return nil, nil, err
	}
}
