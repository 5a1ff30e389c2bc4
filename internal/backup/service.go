// Package backup creates snapshots of the live data store, restores the most
// recent snapshot when the live data store is missing, and lists the
// snapshots that are available.
package backup

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/kebairia/budgetease/internal/database"
	"github.com/kebairia/budgetease/internal/logger"
	"github.com/kebairia/budgetease/internal/metrics"
	"github.com/kebairia/budgetease/internal/retention"
	"github.com/kebairia/budgetease/internal/store"
)

// Cleaner runs the retention pass that follows every successful backup.
type Cleaner interface {
	Apply(ctx context.Context, retentionDays int) (retention.Report, error)
}

// Service orchestrates create, restore and list against one data store and
// one backup directory. Create and RestoreLatest are not meant to overlap.
type Service struct {
	db            database.Database
	store         *store.Store
	cleaner       Cleaner
	retentionDays int
	now           func() time.Time
	log           logger.Logger
	metrics       *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRetentionDays sets the window passed to the cleaner after each backup.
func WithRetentionDays(days int) Option {
	return func(s *Service) { s.retentionDays = days }
}

// WithClock replaces time.Now when naming snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a Service. cleaner may be nil, in which case Create
// performs no cleanup.
func NewService(db database.Database, st *store.Store, cleaner Cleaner, opts ...Option) *Service {
	s := &Service{
		db:            db,
		store:         st,
		cleaner:       cleaner,
		retentionDays: 30,
		now:           time.Now,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create copies the live data store into a new snapshot and returns its path.
// When the live data store does not exist there is nothing to back up and
// Create returns "" with a nil error without touching the backup directory.
// A snapshot with the same derived name is never overwritten; the call fails
// with an error matching store.ErrConflict instead. After a successful copy
// the retention pass runs; its failure is logged and does not affect the
// result.
func (s *Service) Create(ctx context.Context) (string, error) {
	log := s.log
	src := s.db.GetPath()

	ok, err := s.db.Exists()
	if err != nil {
		s.metrics.BackupResult(metrics.ResultFailure, time.Time{})
		return "", errors.Wrap(err, "check live data store")
	}
	if !ok {
		log.Warn("live data store not found, skipping backup", "path", src)
		s.metrics.BackupResult(metrics.ResultSkipped, time.Time{})
		return "", nil
	}

	if err := s.store.EnsureDirectory(); err != nil {
		s.metrics.BackupResult(metrics.ResultFailure, time.Time{})
		return "", err
	}

	at := s.now()
	log.Info("backup started",
		"database", s.db.GetName(),
		"engine", s.db.GetEngine(),
		"source", src,
		"path", s.store.BuildSnapshotPath(at),
	)

	start := time.Now()
	path, err := s.copyOut(ctx, src, at)
	if err != nil {
		result := metrics.ResultFailure
		if errors.Is(err, store.ErrConflict) {
			result = metrics.ResultConflict
		}
		s.metrics.BackupResult(result, time.Time{})
		log.Error("backup failed",
			"database", s.db.GetName(),
			"source", src,
			"error", err.Error(),
		)
		return "", err
	}
	s.metrics.BackupResult(metrics.ResultSuccess, at)

	log.Info("backup completed",
		"database", s.db.GetName(),
		"path", path,
		"duration", time.Since(start).String(),
	)

	s.cleanup(ctx, path)
	return path, nil
}

func (s *Service) copyOut(ctx context.Context, src string, at time.Time) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "open live data store %q", src)
	}
	defer in.Close()

	return s.store.Publish(ctx, in, at)
}

// cleanup is the best-effort continuation of Create. created is the snapshot
// that was just published.
func (s *Service) cleanup(ctx context.Context, created string) {
	if s.cleaner == nil {
		return
	}
	report, err := s.cleaner.Apply(ctx, s.retentionDays)
	if err != nil {
		s.log.Error("post-backup cleanup failed", "error", err.Error())
		return
	}
	if slices.Contains(report.Deleted, created) {
		s.log.Warn("new snapshot removed by retention",
			"path", created,
			"retention_days", s.retentionDays,
		)
	}
}

// RestoreLatest copies the most recent snapshot to the live data store path
// when, and only when, no live data store exists. It reports whether a
// restore happened. Existing live data always wins over any snapshot.
func (s *Service) RestoreLatest(ctx context.Context) (bool, error) {
	log := s.log
	dst := s.db.GetPath()

	ok, err := s.db.Exists()
	if err != nil {
		s.metrics.RestoreResult(metrics.ResultFailure)
		return false, errors.Wrap(err, "check live data store")
	}
	if ok {
		log.Info("live data store exists, skipping restore", "path", dst)
		s.metrics.RestoreResult(metrics.ResultSkipped)
		return false, nil
	}

	snapshots, err := s.store.ListSnapshots()
	if err != nil {
		s.metrics.RestoreResult(metrics.ResultFailure)
		return false, err
	}
	if len(snapshots) == 0 {
		log.Info("no snapshots found, skipping restore", "directory", s.store.Dir())
		s.metrics.RestoreResult(metrics.ResultSkipped)
		return false, nil
	}

	latest := snapshots[0]
	log.Info("restore started",
		"database", s.db.GetName(),
		"source", latest.Path,
		"path", dst,
	)

	start := time.Now()
	if err := s.copyIn(ctx, latest.Path, dst); err != nil {
		s.metrics.RestoreResult(metrics.ResultFailure)
		log.Error("restore failed",
			"source", latest.Path,
			"error", err.Error(),
		)
		return false, err
	}
	s.metrics.RestoreResult(metrics.ResultSuccess)

	log.Info("restore completed",
		"database", s.db.GetName(),
		"source", latest.Path,
		"duration", time.Since(start).String(),
	)
	return true, nil
}

func (s *Service) copyIn(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open snapshot %q", src)
	}
	defer in.Close()

	return store.ReplaceFile(ctx, dst, in)
}

// ListAvailable returns snapshot paths, most recent first. Listing errors are
// logged and reported as an empty result.
func (s *Service) ListAvailable() []string {
	snapshots := s.Snapshots()
	paths := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		paths = append(paths, snap.Path)
	}
	return paths
}

// Snapshots is ListAvailable with file details.
func (s *Service) Snapshots() []store.Snapshot {
	snapshots, err := s.store.ListSnapshots()
	if err != nil {
		s.log.Error("failed to list snapshots", "directory", s.store.Dir(), "error", err.Error())
		return []store.Snapshot{}
	}
	s.metrics.Snapshots(len(snapshots))
	return snapshots
}

// Store returns the backup store the service writes to.
func (s *Service) Store() *store.Store { return s.store }

// Database returns the live data store.
func (s *Service) Database() database.Database { return s.db }
