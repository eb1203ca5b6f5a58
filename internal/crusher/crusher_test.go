package crusher_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/reactor"
)

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go r.Run()
	t.Cleanup(r.Close)
	return r
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
	return ln.Addr().(*net.TCPAddr)
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestTCP_OpenRejectsMissingConfiguration(t *testing.T) {
	r := newTestReactor(t)
	tc := crusher.NewTCP(crusher.NewTCPOptions("", "127.0.0.1:17", r))
	err := tc.Open()
	require.ErrorIs(t, err, crusher.ErrConfiguration)
}

func TestTCP_OpenTwiceFailsWithAlreadyOpen(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	tc := crusher.NewTCP(crusher.NewTCPOptions(freePort(t), remote.String(), r))
	require.NoError(t, tc.Open())
	t.Cleanup(func() { tc.Close() })

	require.ErrorIs(t, tc.Open(), crusher.ErrAlreadyOpen)
}

func TestTCP_EchoThroughFacade(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	local := freePort(t)

	tc := crusher.NewTCP(crusher.NewTCPOptions(local, remote.String(), r))
	require.NoError(t, tc.Open())
	t.Cleanup(func() { tc.Close() })

	conn, err := net.Dial("tcp", local)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F}
	_, err = conn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.Eventually(t, func() bool { return tc.PairCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestTCP_CrushClosesLiveConnectionsAndAcceptsNew(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	local := freePort(t)

	tc := crusher.NewTCP(crusher.NewTCPOptions(local, remote.String(), r))
	require.NoError(t, tc.Open())
	t.Cleanup(func() { tc.Close() })

	conn, err := net.Dial("tcp", local)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return tc.PairCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, tc.Crush())

	buf := make([]byte, 16)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	assert.Error(t, err)

	conn2, err := net.Dial("tcp", local)
	require.NoError(t, err)
	defer conn2.Close()
	_, err = conn2.Write([]byte("hi"))
	require.NoError(t, err)
	conn2.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestTCP_FreezeSuspendsThenUnfreezeDelivers(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)
	local := freePort(t)

	tc := crusher.NewTCP(crusher.NewTCPOptions(local, remote.String(), r))
	require.NoError(t, tc.Open())
	t.Cleanup(func() { tc.Close() })

	conn, err := net.Dial("tcp", local)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return tc.PairCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, tc.Freeze())
	assert.True(t, tc.IsFrozen())

	_, err = conn.Write([]byte("abc"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.Error(t, err, "no bytes should arrive while frozen")

	require.NoError(t, tc.Unfreeze())
	assert.False(t, tc.IsFrozen())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))
}

func TestUDP_OpenRejectsMissingConfiguration(t *testing.T) {
	r := newTestReactor(t)
	uc := crusher.NewUDP(crusher.NewUDPOptions("", "127.0.0.1:53", r))
	require.ErrorIs(t, uc.Open(), crusher.ErrConfiguration)
}

func startEchoUDPServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDP(buf[:n], addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

func freeUDPAddrString(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

func TestUDP_EchoThroughFacade(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoUDPServer(t)
	local := freeUDPAddrString(t)

	uc := crusher.NewUDP(crusher.NewUDPOptions(local, remote.String(), r))
	require.NoError(t, uc.Open())
	t.Cleanup(func() { uc.Close() })

	localAddr, err := net.ResolveUDPAddr("udp", local)
	require.NoError(t, err)
	client, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer client.Close()

	payload := []byte{0x01, 0x02, 0x03}
	_, err = client.Write(payload)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])

	require.Eventually(t, func() bool { return len(uc.Snapshot()) == 1 }, time.Second, 10*time.Millisecond)
}
