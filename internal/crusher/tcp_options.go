package crusher

import (
	"log/slog"
	"net"
	"time"

	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
	"github.com/hydracrusher/crusher/internal/tcpproxy"
)

const (
	defaultBufferCount = 16
	defaultBufferSize  = 16 * 1024
)

// TCPOptions is the builder-style configuration for a TCP Crusher, per
// spec.md §6's "Construction (Crusher facade, builder form)".
type TCPOptions struct {
	LocalAddress  string
	RemoteAddress string
	Reactor       *reactor.Reactor

	Backlog             int
	KeepAlive           bool
	TCPNoDelay          bool
	RcvBufferSize       int
	SndBufferSize       int
	ConnectionTimeoutMs int
	BufferCount         int
	BufferSize          int

	CreationListener func(*tcpproxy.Pair)
	DeletionListener func(*tcpproxy.Pair)

	Logger *slog.Logger
	Stats  *metrics.Stats
}

// TCPOption mutates a TCPOptions under construction.
type TCPOption func(*TCPOptions)

// NewTCPOptions builds a TCPOptions with spec-mandated defaults
// (bufferCount 16, bufferSize 16 KiB) applied before opts.
func NewTCPOptions(localAddress, remoteAddress string, r *reactor.Reactor, opts ...TCPOption) TCPOptions {
	o := TCPOptions{
		LocalAddress:  localAddress,
		RemoteAddress: remoteAddress,
		Reactor:       r,
		BufferCount:   defaultBufferCount,
		BufferSize:    defaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithBacklog(n int) TCPOption                { return func(o *TCPOptions) { o.Backlog = n } }
func WithKeepAlive(b bool) TCPOption             { return func(o *TCPOptions) { o.KeepAlive = b } }
func WithTCPNoDelay(b bool) TCPOption            { return func(o *TCPOptions) { o.TCPNoDelay = b } }
func WithRcvBufferSize(n int) TCPOption          { return func(o *TCPOptions) { o.RcvBufferSize = n } }
func WithSndBufferSize(n int) TCPOption          { return func(o *TCPOptions) { o.SndBufferSize = n } }
func WithConnectionTimeoutMs(ms int) TCPOption   { return func(o *TCPOptions) { o.ConnectionTimeoutMs = ms } }
func WithBufferCount(n int) TCPOption            { return func(o *TCPOptions) { o.BufferCount = n } }
func WithBufferSize(n int) TCPOption             { return func(o *TCPOptions) { o.BufferSize = n } }
func WithLogger(l *slog.Logger) TCPOption        { return func(o *TCPOptions) { o.Logger = l } }
func WithStats(s *metrics.Stats) TCPOption       { return func(o *TCPOptions) { o.Stats = s } }
func WithCreationListener(f func(*tcpproxy.Pair)) TCPOption {
	return func(o *TCPOptions) { o.CreationListener = f }
}
func WithDeletionListener(f func(*tcpproxy.Pair)) TCPOption {
	return func(o *TCPOptions) { o.DeletionListener = f }
}

func (o TCPOptions) validate() error {
	if o.LocalAddress == "" || o.RemoteAddress == "" || o.Reactor == nil {
		return ErrConfiguration
	}
	return nil
}

func (o TCPOptions) connectTimeout() time.Duration {
	if o.ConnectionTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(o.ConnectionTimeoutMs) * time.Millisecond
}

func (o TCPOptions) resolve() (local, remote *net.TCPAddr, err error) {
	local, err = net.ResolveTCPAddr("tcp", o.LocalAddress)
	if err != nil {
		return nil, nil, err
	}
	remote, err = net.ResolveTCPAddr("tcp", o.RemoteAddress)
	if err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

func (o TCPOptions) acceptorOptions() tcpproxy.Options {
	return tcpproxy.Options{
		Backlog:        o.Backlog,
		KeepAlive:      o.KeepAlive,
		NoDelay:        o.TCPNoDelay,
		RcvBufferSize:  o.RcvBufferSize,
		SndBufferSize:  o.SndBufferSize,
		ConnectTimeout: o.connectTimeout(),
		BufferCount:    o.BufferCount,
		BufferSize:     o.BufferSize,
		Stats:          o.Stats,
	}
}
