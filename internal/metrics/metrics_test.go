package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.CyclesTotal.Inc()
	a.SignalsTotal.WithLabelValues("BUY_CALL").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.CyclesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CyclesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SignalsTotal.WithLabelValues("BUY_CALL")))
}

func TestHealth_Statuses(t *testing.T) {
	clock := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	h := NewHealthStatus(10 * time.Second)
	h.now = func() time.Time { return clock }
	h.StartedAt = clock.Add(-time.Minute)

	h.RecordCycle(clock.Add(-5*time.Minute), false)
	assert.Equal(t, "healthy", h.Report().Status)

	h.EnableRedis()
	assert.Equal(t, "degraded", h.Report().Status, "redis enabled but never reached")

	h.mu.Lock()
	h.RedisConnected = true
	h.mu.Unlock()
	assert.Equal(t, "healthy", h.Report().Status)

	clock = clock.Add(11 * time.Second)
	assert.Equal(t, "unhealthy", h.Report().Status)
}

func TestHealth_ServeHTTP(t *testing.T) {
	h := NewHealthStatus(0)
	h.RecordCycle(time.Now(), true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, int64(1), report.CycleErrors)
	assert.Nil(t, report.RedisConnected, "redis not configured")

	h.SetFeedConnected(false)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
