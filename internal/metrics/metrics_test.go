package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BackupResult(ResultSuccess, time.Now())
		m.RestoreResult(ResultSkipped)
		m.CleanupDeleted()
		m.CleanupFailed()
		m.Snapshots(3)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	at := time.Unix(1700000000, 0)

	m.BackupResult(ResultSuccess, at)
	m.BackupResult(ResultConflict, at)
	m.BackupResult(ResultSuccess, at)
	m.CleanupDeleted()
	m.Snapshots(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backups.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues(ResultConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupDeleted))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.snapshots))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastBackup))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RestoreResult(ResultSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `budgetease_restores_total{result="success"} 1`))
}
