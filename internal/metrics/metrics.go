// Package metrics exposes prometheus instrumentation for backups, restores
// and cleanup passes. A nil *Metrics is valid and records nothing, so
// components can be built without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "budgetease"

// Result label values.
const (
	ResultSuccess  = "success"
	ResultSkipped  = "skipped"
	ResultConflict = "conflict"
	ResultFailure  = "failure"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	backups        *prometheus.CounterVec
	restores       *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	cleanupFailed  prometheus.Counter
	snapshots      prometheus.Gauge
	lastBackup     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Snapshot creation attempts by result.",
		}, []string{"result"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore attempts by result.",
		}, []string{"result"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Snapshots deleted by the retention policy.",
		}),
		cleanupFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Snapshots the retention policy failed to delete.",
		}),
		snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshots",
			Help:      "Snapshots present in the backup directory after the last listing.",
		}),
		lastBackup: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot.",
		}),
	}
	reg.MustRegister(
		m.backups,
		m.restores,
		m.cleanupDeleted,
		m.cleanupFailed,
		m.snapshots,
		m.lastBackup,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BackupResult counts a snapshot creation attempt.
func (m *Metrics) BackupResult(result string, at time.Time) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.lastBackup.Set(float64(at.Unix()))
	}
}

// RestoreResult counts a restore attempt.
func (m *Metrics) RestoreResult(result string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(result).Inc()
}

// CleanupDeleted counts one deleted snapshot.
func (m *Metrics) CleanupDeleted() {
	if m == nil {
		return
	}
	m.cleanupDeleted.Inc()
}

// CleanupFailed counts one snapshot that could not be deleted.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailed.Inc()
}

// Snapshots records the current snapshot count.
func (m *Metrics) Snapshots(n int) {
	if m == nil {
		return
	}
	m.snapshots.Set(float64(n))
}
