package tcpproxy_test

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/reactor"
	"github.com/hydracrusher/crusher/internal/tcpproxy"
)

func mustTCPAddr(t *testing.T, ln net.Listener) *net.TCPAddr {
	t.Helper()
	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr
}

func startEchoServer(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(c)
		}
	}()
	return mustTCPAddr(t, ln)
}

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	t.Cleanup(r.Close)
	return r
}

func startAcceptor(t *testing.T, r *reactor.Reactor, remote *net.TCPAddr, opts tcpproxy.Options) (*tcpproxy.Acceptor, *net.TCPAddr, chan *tcpproxy.Pair, chan *tcpproxy.Pair) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	local := mustTCPAddr(t, ln)
	require.NoError(t, ln.Close())

	created := make(chan *tcpproxy.Pair, 8)
	deleted := make(chan *tcpproxy.Pair, 8)
	a, err := tcpproxy.NewAcceptor(r, local, remote, opts, nil,
		func(p *tcpproxy.Pair) { created <- p },
		func(p *tcpproxy.Pair) { deleted <- p },
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, local, created, deleted
}

func defaultOptions() tcpproxy.Options {
	return tcpproxy.Options{
		Backlog:        16,
		BufferCount:    16,
		BufferSize:     4096,
		ConnectTimeout: time.Second,
	}
}

func TestAcceptor_EchoesBytesAndClosesOnHalfClose(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	_, local, created, deleted := startAcceptor(t, r, remote, defaultOptions())

	conn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-created:
	case <-time.After(time.Second):
		t.Fatal("pair was never created")
	}

	payload := []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f}
	_, err = conn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("pair was never torn down after half-close")
	}
}

func TestAcceptor_ConnectTimeoutLeaksNoSockets(t *testing.T) {
	r := newTestReactor(t)
	blackhole := &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 1}
	opts := defaultOptions()
	opts.ConnectTimeout = 50 * time.Millisecond
	_, local, created, _ := startAcceptor(t, r, blackhole, opts)

	conn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-created:
		t.Fatal("no pair should be published for a connect that never completes")
	case <-time.After(200 * time.Millisecond):
	}

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "client side should observe the accepted socket closing")
}

func TestPair_FreezeSuspendsTrafficThenUnfreezeDelivers(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	opts := defaultOptions()
	opts.BufferCount = 4
	opts.BufferSize = 256
	_, local, created, _ := startAcceptor(t, r, remote, opts)

	conn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer conn.Close()

	var pair *tcpproxy.Pair
	select {
	case pair = <-created:
	case <-time.After(time.Second):
		t.Fatal("pair was never created")
	}

	pair.Freeze()
	require.Eventually(t, pair.IsFrozen, time.Second, time.Millisecond)

	full := make([]byte, 4096)
	for i := range full {
		full[i] = byte(i)
	}
	writeDone := make(chan error, 1)
	go func() {
		_, err := conn.Write(full)
		writeDone <- err
	}()

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	n, _ := conn.Read(make([]byte, len(full)))
	assert.Equal(t, 0, n, "frozen pair must not deliver bytes to the remote/back before unfreeze")

	pair.Unfreeze()
	require.NoError(t, <-writeDone)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(io.LimitReader(conn, int64(len(full))))
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestPair_ExternalCloseTearsDownBothSockets(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	_, local, created, deleted := startAcceptor(t, r, remote, defaultOptions())

	conn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer conn.Close()

	var pair *tcpproxy.Pair
	select {
	case pair = <-created:
	case <-time.After(time.Second):
		t.Fatal("pair was never created")
	}

	pair.Close()

	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("deletion listener never fired after Close")
	}

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestPair_CrushClosesLiveConnectionsThenAcceptsNew(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	_, local, created, deleted := startAcceptor(t, r, remote, defaultOptions())

	var closedCount atomic.Int32
	conns := make([]net.Conn, 3)
	pairs := make([]*tcpproxy.Pair, 0, len(conns))
	for i := range conns {
		c, err := net.Dial("tcp", local.String())
		require.NoError(t, err)
		conns[i] = c
		select {
		case p := <-created:
			pairs = append(pairs, p)
		case <-time.After(time.Second):
			t.Fatalf("pair %d was never created", i)
		}
	}

	// Simulate the close half of Crusher.Crush(): close every live pair,
	// as the facade does over its snapshot of the pair map.
	for _, p := range pairs {
		p.Close()
	}
	for i := 0; i < len(pairs); i++ {
		select {
		case <-deleted:
			closedCount.Add(1)
		case <-time.After(time.Second):
			t.Fatalf("pair %d was never torn down", i)
		}
	}
	assert.Equal(t, int32(len(pairs)), closedCount.Load())

	for _, c := range conns {
		c.SetReadDeadline(time.Now().Add(time.Second))
		_, err := c.Read(make([]byte, 1))
		assert.Error(t, err, "client should observe its pair closing")
		c.Close()
	}

	newConn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer newConn.Close()
	select {
	case <-created:
	case <-time.After(time.Second):
		t.Fatal("acceptor did not accept a new connection after crush")
	}
}
