package models

// RouteStatusResponse describes one configured route's lifecycle state.
type RouteStatusResponse struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Open     bool   `json:"open"`
	Frozen   bool   `json:"frozen"`
}

// PairResponse describes one live TCP pair, the admin-API counterpart of
// Crusher.Snapshot() on the TCP facade.
type PairResponse struct {
	ID        string `json:"id"`
	InnerAddr string `json:"inner_addr"`
	OuterAddr string `json:"outer_addr"`
	State     string `json:"state"`
	Frozen    bool   `json:"frozen"`
}

// OuterResponse describes one live UDP Outer, the admin-API counterpart
// of Crusher.Snapshot() on the UDP facade.
type OuterResponse struct {
	Source string `json:"source"`
	IdleMs int64  `json:"idle_ms"`
}
