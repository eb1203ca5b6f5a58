package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hydracrusher/crusher/internal/api/models"
)

// Health reports a simple liveness status.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats reports process uptime, host CPU/memory figures, and the shared
// relay counters (bytes relayed, pairs opened/closed, UDP packets
// dropped), per SPEC_FULL §12's "process/runtime stats surface".
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		Relay:         h.relaySnapshot(),
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) relaySnapshot() models.RelayStatsResponse {
	if h.stats == nil {
		return models.RelayStatsResponse{}
	}
	snap := h.stats.Snapshot()
	return models.RelayStatsResponse{
		TCPPairsOpened: snap.TCPPairsOpened,
		TCPPairsClosed: snap.TCPPairsClosed,
		TCPBytesIn:     snap.TCPBytesIn,
		TCPBytesOut:    snap.TCPBytesOut,
		TCPAcceptFail:  snap.TCPAcceptFail,
		TCPConnectFail: snap.TCPConnectFail,
		UDPPacketsIn:   snap.UDPPacketsIn,
		UDPPacketsOut:  snap.UDPPacketsOut,
		UDPPacketsDrop: snap.UDPPacketsDrop,
		UDPOutersOpen:  snap.UDPOutersOpen,
		UDPOutersEvict: snap.UDPOutersEvict,
	}
}
