package config

import (
	"log/slog"

	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/metrics"
	"github.com/hydracrusher/crusher/internal/reactor"
	"github.com/hydracrusher/crusher/internal/tcpproxy"
)

// ToTCPOptions translates a TCP RouteConfig into the library layer's
// builder-style TCPOptions, per SPEC_FULL §10.2.
func (r RouteConfig) ToTCPOptions(
	re *reactor.Reactor,
	logger *slog.Logger,
	stats *metrics.Stats,
	creationListener, deletionListener func(*tcpproxy.Pair),
) crusher.TCPOptions {
	return crusher.NewTCPOptions(r.Local, r.Remote, re,
		crusher.WithBacklog(r.Backlog),
		crusher.WithKeepAlive(r.KeepAlive),
		crusher.WithTCPNoDelay(r.TCPNoDelay),
		crusher.WithRcvBufferSize(r.RcvBufferSize),
		crusher.WithSndBufferSize(r.SndBufferSize),
		crusher.WithConnectionTimeoutMs(r.ConnectionTimeoutMs),
		crusher.WithBufferCount(r.BufferCount),
		crusher.WithBufferSize(r.BufferSize),
		crusher.WithLogger(logger),
		crusher.WithStats(stats),
		crusher.WithCreationListener(creationListener),
		crusher.WithDeletionListener(deletionListener),
	)
}

// ToUDPOptions translates a UDP RouteConfig into the library layer's
// builder-style UDPOptions.
func (r RouteConfig) ToUDPOptions(re *reactor.Reactor, logger *slog.Logger, stats *metrics.Stats) crusher.UDPOptions {
	return crusher.NewUDPOptions(r.Local, r.Remote, re,
		crusher.WithUDPRcvBufferSize(r.RcvBufferSize),
		crusher.WithUDPSndBufferSize(r.SndBufferSize),
		crusher.WithMaxIdleDurationMs(r.MaxIdleDurationMs),
		crusher.WithPendingLimit(r.PendingLimit),
		crusher.WithUDPLogger(logger),
		crusher.WithUDPStats(stats),
	)
}
