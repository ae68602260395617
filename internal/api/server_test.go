package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-matcher/internal/api"
	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer has no reconcile service, so only read endpoints are mounted
func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	server := api.NewServer(api.DefaultConfig(), repo, nil, metrics.New(), quietLogger())
	return server, repo
}

func serve(server *api.Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Run("serves the private registry", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := serve(server, http.MethodGet, "/metrics")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("absent without metrics", func(t *testing.T) {
		server := api.NewServer(api.DefaultConfig(), storage.NewMockRepository(), nil, nil, quietLogger())

		rec := serve(server, http.MethodGet, "/metrics")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_RunsEndpoints(t *testing.T) {
	server, repo := newTestServer(t)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateRun(&storage.Run{ID: "run-1", State: "indexing", StartedAt: started}))
	require.NoError(t, repo.SaveOutcomes("run-1", []storage.Outcome{
		{Reference: "T1", Status: storage.OutcomeMatched, Strategy: "vendor"},
		{Reference: "T2", Status: storage.OutcomeUnmatched},
	}))

	t.Run("GET /api/runs returns runs", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/runs")

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.Count)
	})

	t.Run("GET /api/runs/:id returns single run", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/runs/run-1")

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "run-1", response.ID)
		assert.Nil(t, response.CompletedAt)
	})

	t.Run("GET /api/runs/:id/outcomes routes the status filter", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/runs/run-1/outcomes?status=matched")

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.OutcomeListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Len(t, response.Outcomes, 1)
		assert.Equal(t, "T1", response.Outcomes[0].Reference)
	})

	t.Run("GET /api/runs/:id/issues on a clean run", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/runs/run-1/issues")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"issues":[],"count":0}`, rec.Body.String())
	})

	t.Run("GET /api/stats", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/stats")

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.StatsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.TotalRuns)
	})
}

func TestServer_ReconcileRoutesNeedService(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodGet, "/api/reconciliations")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("sets CORS headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("handles OPTIONS preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("configured origins replace the defaults", func(t *testing.T) {
		cfg := api.DefaultConfig()
		cfg.AllowedOrigins = []string{"https://dashboard.example"}
		custom := api.NewServer(cfg, storage.NewMockRepository(), nil, nil, quietLogger())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		custom.Router().ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	server, _ := newTestServer(t)
	assert.NoError(t, server.Shutdown(t.Context()))
}
