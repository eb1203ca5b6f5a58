package crusher

import (
	"log/slog"
	"net"
	"time"

	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
)

const defaultPendingLimit = 256

// UDPOptions is the builder-style configuration for a UDP Crusher, per
// spec.md §6's UDP option list.
type UDPOptions struct {
	LocalAddress  string
	RemoteAddress string
	Reactor       *reactor.Reactor

	RcvBufferSize     int
	SndBufferSize     int
	MaxIdleDurationMs int
	PendingLimit      int

	Logger *slog.Logger
	Stats  *metrics.Stats
}

// UDPOption mutates a UDPOptions under construction.
type UDPOption func(*UDPOptions)

// NewUDPOptions builds a UDPOptions with defaults applied before opts.
func NewUDPOptions(localAddress, remoteAddress string, r *reactor.Reactor, opts ...UDPOption) UDPOptions {
	o := UDPOptions{
		LocalAddress:  localAddress,
		RemoteAddress: remoteAddress,
		Reactor:       r,
		PendingLimit:  defaultPendingLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithUDPRcvBufferSize(n int) UDPOption { return func(o *UDPOptions) { o.RcvBufferSize = n } }
func WithUDPSndBufferSize(n int) UDPOption { return func(o *UDPOptions) { o.SndBufferSize = n } }
func WithMaxIdleDurationMs(ms int) UDPOption {
	return func(o *UDPOptions) { o.MaxIdleDurationMs = ms }
}
func WithPendingLimit(n int) UDPOption      { return func(o *UDPOptions) { o.PendingLimit = n } }
func WithUDPLogger(l *slog.Logger) UDPOption { return func(o *UDPOptions) { o.Logger = l } }
func WithUDPStats(s *metrics.Stats) UDPOption { return func(o *UDPOptions) { o.Stats = s } }

func (o UDPOptions) validate() error {
	if o.LocalAddress == "" || o.RemoteAddress == "" || o.Reactor == nil {
		return ErrConfiguration
	}
	return nil
}

func (o UDPOptions) maxIdle() time.Duration {
	if o.MaxIdleDurationMs <= 0 {
		return 0
	}
	return time.Duration(o.MaxIdleDurationMs) * time.Millisecond
}

func (o UDPOptions) resolve() (local, remote *net.UDPAddr, err error) {
	local, err = net.ResolveUDPAddr("udp", o.LocalAddress)
	if err != nil {
		return nil, nil, err
	}
	remote, err = net.ResolveUDPAddr("udp", o.RemoteAddress)
	if err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}
