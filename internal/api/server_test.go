package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbindexd/internal/health"
	"github.com/kbforge/kbindexd/internal/indexer"
)

type fakeStats struct {
	failing bool
}

func (f *fakeStats) CycleTotals() (int64, int64, int64, error) {
	if f.failing {
		return 0, 0, 0, assert.AnError
	}
	return 4, 12, 9000, nil
}

func (f *fakeStats) OutcomeCounts() (map[string]int64, error) {
	return map[string]int64{"success": 10, "failed": 2}, nil
}

func (f *fakeStats) CollectionSizes() (map[string]uint64, error) {
	return map[string]uint64{"kb_tenant-a": 321}, nil
}

func newTestServer(state *health.State, stats StatsSource, trigger func(string) bool) *Server {
	if trigger == nil {
		trigger = func(string) bool { return true }
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", state, indexer.NewProgress(), trigger, stats, logger)
}

func allHealthy() *health.State {
	state := health.NewState()
	state.SetEmbedderOK(true)
	state.SetStoreOK(true)
	state.SetLoopRunning(true)
	return state
}

func TestHealthEndpoint(t *testing.T) {
	state := allHealthy()
	srv := newTestServer(state, nil, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap health.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.True(t, snap.Healthy)

	state.SetStoreOK(false)
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(allHealthy(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap indexer.ProgressSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, string(indexer.StateIdle), snap.State)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(allHealthy(), &fakeStats{}, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(4), resp.Cycles)
	assert.Equal(t, int64(10), resp.Outcomes["success"])
	assert.Equal(t, uint64(321), resp.Collections["kb_tenant-a"])
}

func TestStatsEndpoint_Disabled(t *testing.T) {
	srv := newTestServer(allHealthy(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint_ReadFailure(t *testing.T) {
	srv := newTestServer(allHealthy(), &fakeStats{failing: true}, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReindexEndpoint(t *testing.T) {
	var gotTenant string
	trigger := func(tenantID string) bool {
		gotTenant = tenantID
		return true
	}
	srv := newTestServer(allHealthy(), nil, trigger)

	body := strings.NewReader(`{"tenant_id": "tenant-a"}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reindex", body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "tenant-a", gotTenant)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["queued"])
}

func TestReindexEndpoint_EmptyBodyMeansAllTenants(t *testing.T) {
	var gotTenant string
	srv := newTestServer(allHealthy(), nil, func(tenantID string) bool {
		gotTenant = tenantID
		return true
	})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reindex", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, gotTenant)
}

func TestReindexEndpoint_UnhealthyRefuses(t *testing.T) {
	called := false
	srv := newTestServer(health.NewState(), nil, func(string) bool {
		called = true
		return true
	})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reindex", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, called)
}

func TestReindexEndpoint_BadBody(t *testing.T) {
	srv := newTestServer(allHealthy(), nil, nil)

	body := strings.NewReader(`{"tenant_id": 42`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reindex", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodRouting(t *testing.T) {
	srv := newTestServer(allHealthy(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reindex", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
