package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusUnauthorized, 40*time.Millisecond)
	m.RecordSessionCreated(0)
	m.RecordSessionCreated(2)
	m.RecordRateLimited("login")
	m.RecordAuthEvent("login", errors.New("boom"))
	m.RecordMailDispatch("password_reset", nil)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snap.SessionsCreated)
	assert.Equal(t, uint64(2), snap.SessionsEvicted)
	assert.Equal(t, uint64(1), snap.RateLimited)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordAuthEvent("register", nil)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `auth_events_total{operation="register",outcome="success"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordSessionCreated(1)
	m.RecordRateLimited("login")
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
