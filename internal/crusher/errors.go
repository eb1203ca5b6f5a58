// Package crusher is the public control facade for the proxy: a Crusher
// wraps either a TCP Acceptor or a UDP Inner and exposes the lifecycle
// operations of spec §6 (open/close/crush/freeze/unfreeze) plus the
// live-flow introspection described in SPEC_FULL §12.
package crusher

import "errors"

// ErrConfiguration is returned when required fields (local address, remote
// address, reactor) are missing or invalid at Open time.
var ErrConfiguration = errors.New("crusher: invalid configuration")

// ErrNotOpen is returned when an operation that requires an open proxy
// (freeze, unfreeze) is called while it is closed. Close on a closed
// proxy is a no-op and returns nil.
var ErrNotOpen = errors.New("crusher: proxy is not open")

// ErrAlreadyOpen is returned by Open when called on a proxy that is
// already open.
var ErrAlreadyOpen = errors.New("crusher: proxy is already open")
