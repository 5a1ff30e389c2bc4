package operations

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/budgetease/internal/config"
	"github.com/kebairia/budgetease/internal/logger"
	"github.com/kebairia/budgetease/internal/store"
)

func testConfig(dbPath string) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{ConnectionString: "Data Source=" + dbPath},
		Backup: config.BackupConfig{
			Directory:     config.DefaultBackupDirectory,
			Prefix:        config.DefaultPrefix,
			RetentionDays: config.DefaultRetentionDays,
			IntervalHours: config.DefaultIntervalHours,
		},
		Cleanup: config.CleanupConfig{IntervalHours: config.DefaultIntervalHours},
	}
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T, cfg config.Config, opts ...Option) *OperationManager {
	t.Helper()
	om, err := NewOperationManager(context.Background(), cfg, logger.Nop(), nil, opts...)
	require.NoError(t, err)
	return om
}

func TestNewOperationManager_ResolvesLayout(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.sqlite")
	om := newManager(t, testConfig(dbPath))

	assert.Equal(t, dbPath, om.Service().Database().GetPath())
	assert.Equal(t, filepath.Join(filepath.Dir(dbPath), "DatabaseBackups"), om.Store().Dir())
	assert.True(t, om.Store().Matches("budgetease_backup_20250101_000000.sqlite"))
}

func TestBackupListCleanup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("live"), 0o600))
	om := newManager(t, testConfig(dbPath))

	path, err := om.Backup(context.Background())
	require.NoError(t, err)

	snaps := om.List()
	require.Len(t, snaps, 1)
	assert.Equal(t, path, snaps[0].Path)

	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	report, err := om.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Empty(t, report.Deleted)

	report, err = om.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, report.Deleted)
	assert.Empty(t, om.List())
}

func TestRestore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("live"), 0o600))
	om := newManager(t, testConfig(dbPath))

	_, err := om.Backup(context.Background())
	require.NoError(t, err)

	restored, err := om.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	require.NoError(t, os.Remove(dbPath))
	restored, err = om.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)

	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "live", string(data))
}

func TestExportImport(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "budgetease.db")
	content := []byte("budget rows budget rows budget rows")
	require.NoError(t, os.WriteFile(dbPath, content, 0o600))

	clk := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	om := newManager(t, testConfig(dbPath), WithClock(clk.now))

	snap, err := om.Backup(context.Background())
	require.NoError(t, err)

	archive := filepath.Join(root, "export", "snap.db.zst")
	got, err := om.Export(context.Background(), filepath.Base(snap), archive)
	require.NoError(t, err)
	assert.Equal(t, archive, got)
	assert.FileExists(t, archive)

	// same instant: the existing snapshot wins
	_, err = om.Import(context.Background(), archive)
	assert.ErrorIs(t, err, store.ErrConflict)

	clk.t = clk.t.Add(time.Hour)
	imported, err := om.Import(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, om.Store().BuildSnapshotPath(clk.t), imported)

	data, err := os.ReadFile(imported)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Len(t, om.List(), 2)
}

func TestExport_UnknownSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	om := newManager(t, testConfig(dbPath))

	_, err := om.Export(context.Background(), "notes.txt", "")
	assert.ErrorIs(t, err, store.ErrNotSnapshot)

	_, err = om.Export(context.Background(), "budgetease_backup_20250101_000000.db", "")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestImport_CorruptArchive(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "budgetease.db")
	archive := filepath.Join(root, "bad.zst")
	require.NoError(t, os.WriteFile(archive, []byte("definitely not zstd"), 0o600))
	om := newManager(t, testConfig(dbPath))

	_, err := om.Import(context.Background(), archive)
	require.Error(t, err)

	entries, err := os.ReadDir(om.Store().Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no snapshot or temp file may remain")
}

func TestScheduler(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	cfg := testConfig(dbPath)
	cfg.Backup.Schedule = "0 3 * * *"

	s, err := newManager(t, cfg).Scheduler()
	require.NoError(t, err)
	require.Len(t, s.Loops(), 2)
	assert.Equal(t, "backup", s.Loops()[0].String())
	assert.Equal(t, "cleanup", s.Loops()[1].String())

	cfg.Cleanup.Schedule = "not a cron line"
	_, err = newManager(t, cfg).Scheduler()
	assert.Error(t, err)
}

func TestNewOperationManager_Vault(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "from-vault.db")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/budgetease" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"connection_string":"Data Source=` + dbPath + `"}}`))
	}))
	defer srv.Close()
	t.Setenv("VAULT_TOKEN", "s.test")

	cfg := testConfig("ignored.db")
	cfg.Database.Vault = config.VaultConfig{Address: srv.URL, SecretPath: "secret/budgetease"}

	om := newManager(t, cfg)
	assert.Equal(t, dbPath, om.Service().Database().GetPath())

	cfg.Database.Vault.SecretPath = "secret/missing"
	_, err := NewOperationManager(context.Background(), cfg, logger.Nop(), nil)
	assert.Error(t, err)
}
