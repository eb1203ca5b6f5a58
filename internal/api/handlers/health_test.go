package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/api/handlers"
	"github.com/hydracrusher/crusher/internal/api/models"
	"github.com/hydracrusher/crusher/internal/config"
	"github.com/hydracrusher/crusher/internal/crusher"
	"github.com/hydracrusher/crusher/internal/metrics"
)

func TestHealth(t *testing.T) {
	cfg := &config.Config{}
	h := handlers.New(cfg, nil, crusher.NewRegistry(), metrics.New())
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStats_ReportsRelayCounters(t *testing.T) {
	cfg := &config.Config{}
	stats := metrics.New()
	stats.RecordPairOpened()
	stats.RecordBytesIn(128)

	h := handlers.New(cfg, nil, crusher.NewRegistry(), stats)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Uptime)
	assert.Equal(t, uint64(1), resp.Relay.TCPPairsOpened)
	assert.Equal(t, uint64(128), resp.Relay.TCPBytesIn)
}

func TestStats_NilStatsCollectorReturnsZeroRelay(t *testing.T) {
	cfg := &config.Config{}
	h := handlers.New(cfg, nil, crusher.NewRegistry(), nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Relay.TCPPairsOpened)
}
