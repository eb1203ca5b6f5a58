package udpproxy

import "github.com/hydracrusher/crusher/internal/pool"

// readBufPool reduces allocations for the scratch buffer used to receive
// one datagram before it is copied into its owning pendingQueue entry.
var readBufPool = pool.New(func() *[]byte {
	buf := make([]byte, maxDatagramSize)
	return &buf
})
