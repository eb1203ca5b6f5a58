package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     time.Time       `json:"start_time"`
	CPU           CPUStats        `json:"cpu"`
	Memory        MemoryStats     `json:"memory"`
	Relay         RelayStatsResponse `json:"relay"`
}

// RelayStatsResponse mirrors internal/metrics.Snapshot for the wire.
type RelayStatsResponse struct {
	TCPPairsOpened uint64 `json:"tcp_pairs_opened"`
	TCPPairsClosed uint64 `json:"tcp_pairs_closed"`
	TCPBytesIn     uint64 `json:"tcp_bytes_in"`
	TCPBytesOut    uint64 `json:"tcp_bytes_out"`
	TCPAcceptFail  uint64 `json:"tcp_accept_failures"`
	TCPConnectFail uint64 `json:"tcp_connect_failures"`

	UDPPacketsIn   uint64 `json:"udp_packets_in"`
	UDPPacketsOut  uint64 `json:"udp_packets_out"`
	UDPPacketsDrop uint64 `json:"udp_packets_dropped"`
	UDPOutersOpen  uint64 `json:"udp_outers_opened"`
	UDPOutersEvict uint64 `json:"udp_outers_evicted"`
}
