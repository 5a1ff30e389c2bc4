// Package retention deletes snapshots that have aged past the retention
// window.
package retention

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/kebairia/budgetease/internal/logger"
	"github.com/kebairia/budgetease/internal/metrics"
	"github.com/kebairia/budgetease/internal/store"
)

const day = 24 * time.Hour

// StaleTempAge is the minimum age of a leftover temporary file before cleanup
// removes it. Writes in progress keep touching their file, so they stay
// younger than this.
const StaleTempAge = time.Hour

// Store is the part of the backup store the policy needs.
type Store interface {
	ListSnapshots() ([]store.Snapshot, error)
	Remove(ctx context.Context, path string) error
}

// tempLister is implemented by stores that can report abandoned temporary
// files.
type tempLister interface {
	ListTemps() ([]store.Snapshot, error)
}

// Report summarises one cleanup pass.
type Report struct {
	Cutoff  time.Time
	Deleted []string
	Failed  []string
	// Stale lists removed temporary files left by interrupted writes.
	Stale []string
}

// Policy applies an age-based retention window to a backup store.
type Policy struct {
	store   Store
	log     logger.Logger
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the policy logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Policy) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics records deletions and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Policy) { p.metrics = m }
}

// New returns a policy over st.
func New(st Store, opts ...Option) *Policy {
	p := &Policy{
		store: st,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cutoff returns now minus retentionDays. Zero or negative windows return now,
// which makes every existing snapshot eligible.
func Cutoff(now time.Time, retentionDays int) time.Time {
	if retentionDays <= 0 {
		return now
	}
	return now.Add(-time.Duration(retentionDays) * day)
}

// Apply deletes every snapshot whose filesystem timestamp is strictly before
// the cutoff. Deletions are independent: a failed deletion is logged and
// recorded in the report, and the pass moves on. The returned error is
// reserved for failing to list the store or for cancellation.
func (p *Policy) Apply(ctx context.Context, retentionDays int) (Report, error) {
	report := Report{Cutoff: Cutoff(p.now(), retentionDays)}

	snapshots, err := p.store.ListSnapshots()
	if err != nil {
		return report, errors.Wrap(err, "list snapshots for cleanup")
	}

	p.log.Info("cleanup started",
		"cutoff", report.Cutoff.UTC().Format(time.RFC3339),
		"retention_days", retentionDays,
		"snapshots", len(snapshots),
	)

	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			p.log.Warn("cleanup cancelled", "deleted", len(report.Deleted))
			return report, err
		}
		if !snap.CreatedAt.Before(report.Cutoff) {
			continue
		}

		if err := p.store.Remove(ctx, snap.Path); err != nil {
			report.Failed = append(report.Failed, snap.Path)
			p.metrics.CleanupFailed()
			p.log.Error("failed to delete snapshot",
				"path", snap.Path,
				"error", err.Error(),
			)
			continue
		}

		report.Deleted = append(report.Deleted, snap.Path)
		p.metrics.CleanupDeleted()
		p.log.Info("deleted old snapshot",
			"path", snap.Path,
			"created", snap.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	report.Stale = p.removeStaleTemps(ctx, report.Cutoff)

	p.log.Info("cleanup completed",
		"deleted", len(report.Deleted),
		"failed", len(report.Failed),
		"stale_temps", len(report.Stale),
	)
	return report, nil
}

// removeStaleTemps deletes temporary files older than both the cutoff and
// StaleTempAge. Failures are logged and never fail the pass.
func (p *Policy) removeStaleTemps(ctx context.Context, cutoff time.Time) []string {
	tl, ok := p.store.(tempLister)
	if !ok {
		return nil
	}
	if limit := p.now().Add(-StaleTempAge); limit.Before(cutoff) {
		cutoff = limit
	}

	temps, err := tl.ListTemps()
	if err != nil {
		p.log.Warn("failed to list temporary files", "error", err.Error())
		return nil
	}

	var removed []string
	for _, tmp := range temps {
		if ctx.Err() != nil {
			break
		}
		if !tmp.CreatedAt.Before(cutoff) {
			continue
		}
		if err := p.store.Remove(ctx, tmp.Path); err != nil {
			p.log.Warn("failed to delete stale temporary file", "path", tmp.Path, "error", err.Error())
			continue
		}
		removed = append(removed, tmp.Path)
		p.log.Info("deleted stale temporary file", "path", tmp.Path)
	}
	return removed
}
