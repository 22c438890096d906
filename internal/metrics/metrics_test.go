package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpdate(t *testing.T) {
	m := New()
	m.ObserveUpdate("r1", "greedy", -5, 12, 3.25, 300, true)
	m.ObserveUpdate("r1", "greedy", -4, 12, 3.5, 100, false)

	assert.Equal(t, 3.5, testutil.ToFloat64(m.rewardRate.WithLabelValues("r1")))
	assert.Equal(t, -4.0, testutil.ToFloat64(m.slope.WithLabelValues("r1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates.WithLabelValues("greedy")))
	assert.Equal(t, 400.0, testutil.ToFloat64(m.trials))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jumps))
}

func TestObserveRunFinished_DropsRunGauges(t *testing.T) {
	m := New()
	m.ObserveUpdate("r1", "gradient", -5, 12, 3.25, 300, false)
	m.ObserveUpdate("r2", "gradient", -1, 8, 2.0, 300, false)
	require.Equal(t, 2, testutil.CollectAndCount(m.rewardRate))

	m.ObserveRunFinished("r1", "done")
	assert.Equal(t, 1, testutil.CollectAndCount(m.rewardRate))
	assert.Equal(t, 1, testutil.CollectAndCount(m.slope))
	assert.Equal(t, 1, testutil.CollectAndCount(m.intercept))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rewardRate.WithLabelValues("r2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("done")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates.WithLabelValues("gradient")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRunFinished("r0", "done")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ddm_runs_total{status="done"} 1`), body)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpdate("r", "gradient", 0, 0, 0, 1, false)
		m.ObserveRunFinished("r", "failed")
	})
	assert.Nil(t, m.Registry())
}
