package operations

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/kebairia/budgetease/internal/backup"
	"github.com/kebairia/budgetease/internal/config"
	"github.com/kebairia/budgetease/internal/database"
	"github.com/kebairia/budgetease/internal/logger"
	"github.com/kebairia/budgetease/internal/metrics"
	"github.com/kebairia/budgetease/internal/retention"
	"github.com/kebairia/budgetease/internal/scheduler"
	"github.com/kebairia/budgetease/internal/store"
	"github.com/kebairia/budgetease/internal/vault"
)

// OperationManager wires the configuration into the backup components and
// exposes the operations the CLI runs.
type OperationManager struct {
	cfg     config.Config
	db      database.Database
	store   *store.Store
	policy  *retention.Policy
	service *backup.Service
	now     func() time.Time
	log     logger.Logger
	metrics *metrics.Metrics
}

// Option configures an OperationManager.
type Option func(*OperationManager)

// WithClock replaces time.Now for snapshot naming.
func WithClock(now func() time.Time) Option {
	return func(om *OperationManager) {
		if now != nil {
			om.now = now
		}
	}
}

// NewOperationManager resolves the live data store (from Vault when
// configured) and builds the store, retention policy and backup service.
// m may be nil.
func NewOperationManager(
	ctx context.Context,
	cfg config.Config,
	log logger.Logger,
	m *metrics.Metrics,
	opts ...Option,
) (*OperationManager, error) {
	if log == nil {
		log = logger.Nop()
	}
	om := &OperationManager{
		cfg:     cfg,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(om)
	}

	conn, err := om.connectionString(ctx)
	if err != nil {
		return nil, err
	}

	om.db = database.FromConnectionString(conn)
	dbPath := om.db.GetPath()
	om.store = store.New(
		cfg.Backup.ResolveDirectory(dbPath),
		cfg.Backup.Prefix,
		cfg.Backup.ResolveExtension(dbPath),
		store.WithLogger(log),
	)
	om.policy = retention.New(om.store,
		retention.WithLogger(log),
		retention.WithMetrics(m),
	)
	om.service = backup.NewService(om.db, om.store, om.policy,
		backup.WithLogger(log),
		backup.WithRetentionDays(cfg.Backup.RetentionDays),
		backup.WithClock(func() time.Time { return om.now() }),
		backup.WithMetrics(m),
	)

	log.Debug("operation manager ready",
		"database", dbPath,
		"backup_dir", om.store.Dir(),
		"retention_days", cfg.Backup.RetentionDays,
	)
	return om, nil
}

func (om *OperationManager) connectionString(ctx context.Context) (string, error) {
	vc := om.cfg.Database.Vault
	if !vc.Enabled() {
		return om.cfg.Database.ConnectionString, nil
	}

	client, err := vault.NewClient(ctx,
		vault.WithAddress(vc.Address),
		vault.WithAppRole(vc.RoleID, vc.ApproleName),
	)
	if err != nil {
		return "", errors.Wrap(err, "vault client init")
	}
	conn, err := client.ConnectionString(ctx, vc.SecretPath)
	if err != nil {
		return "", errors.Wrap(err, "resolve connection string from vault")
	}
	om.log.Info("connection string loaded from vault", "path", vc.SecretPath)
	return conn, nil
}

// Config returns the configuration the manager was built from.
func (om *OperationManager) Config() config.Config { return om.cfg }

// Service returns the backup service.
func (om *OperationManager) Service() *backup.Service { return om.service }

// Store returns the backup store.
func (om *OperationManager) Store() *store.Store { return om.store }

// Backup creates one snapshot. It returns "" when there is nothing to back up.
func (om *OperationManager) Backup(ctx context.Context) (string, error) {
	return om.service.Create(ctx)
}

// Restore restores the newest snapshot when the live data store is missing.
func (om *OperationManager) Restore(ctx context.Context) (bool, error) {
	return om.service.RestoreLatest(ctx)
}

// List returns the available snapshots, most recent first.
func (om *OperationManager) List() []store.Snapshot {
	return om.service.Snapshots()
}

// Cleanup runs one retention pass with the given window in days.
func (om *OperationManager) Cleanup(ctx context.Context, days int) (retention.Report, error) {
	return om.policy.Apply(ctx, days)
}

// Scheduler builds the backup and cleanup loops from the configuration.
func (om *OperationManager) Scheduler() (*scheduler.Scheduler, error) {
	bc, cc := om.cfg.Backup, om.cfg.Cleanup

	backupOpts, err := loopOptions(bc.Schedule, bc.Interval(), bc.Warmup)
	if err != nil {
		return nil, errors.Wrap(err, "backup schedule")
	}
	backupOpts = append(backupOpts,
		scheduler.WithTimeout(bc.Timeout),
		scheduler.WithLogger(om.log),
	)
	backupLoop := scheduler.NewLoop("backup", func(ctx context.Context) error {
		_, err := om.service.Create(ctx)
		return err
	}, backupOpts...)

	cleanupOpts, err := loopOptions(cc.Schedule, cc.Interval(), cc.Warmup)
	if err != nil {
		return nil, errors.Wrap(err, "cleanup schedule")
	}
	cleanupOpts = append(cleanupOpts, scheduler.WithLogger(om.log))
	cleanupLoop := scheduler.NewLoop("cleanup", func(ctx context.Context) error {
		_, err := om.policy.Apply(ctx, bc.RetentionDays)
		return err
	}, cleanupOpts...)

	return scheduler.New(om.log, backupLoop, cleanupLoop), nil
}

func loopOptions(spec string, interval, warmup time.Duration) ([]scheduler.LoopOption, error) {
	opts := []scheduler.LoopOption{
		scheduler.WithWarmup(warmup),
		scheduler.WithInterval(interval),
	}
	if spec == "" {
		return opts, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", spec)
	}
	return append(opts, scheduler.WithSchedule(sched)), nil
}
