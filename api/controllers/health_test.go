package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "dev"}}
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "dev", resp.Header().Get("X-Marketplace-Env"))
}

func TestHealthReady(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "ready", envelope.Data.Status)
	assert.Equal(t, map[string]string{"database": "up", "redis": "skipped"}, envelope.Data.Checks)
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, stubPinger{err: errors.New("connection refused")}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "DEPENDENCY_ERROR")
	assert.NotContains(t, resp.Body.String(), "connection refused")
}
