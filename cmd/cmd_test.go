package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/budgetease/internal/metrics"
	"github.com/kebairia/budgetease/internal/store"
)

func init() {
	color.NoColor = true
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	listJSON, cleanupDays, exportOutput = false, 0, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budgetease.yaml")
	body := "database:\n  connection_string: \"Data Source=" + dbPath + "\"\n" +
		"logging:\n  level: error\n  development: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBackupListCleanupCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	cfgPath := writeConfig(t, dbPath)

	out, err := run(t, "backup", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to back up")

	require.NoError(t, os.WriteFile(dbPath, []byte("live"), 0o600))
	out, err = run(t, "backup", "-c", cfgPath)
	require.NoError(t, err)
	snapshot := strings.TrimSpace(out)
	assert.FileExists(t, snapshot)

	out, err = run(t, "list", "--json", "-c", cfgPath)
	require.NoError(t, err)
	var listed []snapshotJSON
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, snapshot, listed[0].Path)

	out, err = run(t, "cleanup", "--days", "0", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 deleted, 0 failed")
	assert.NoFileExists(t, snapshot)
}

func TestRestoreCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "budgetease.db")
	cfgPath := writeConfig(t, dbPath)

	out, err := run(t, "restore", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing restored")
}

func TestConfigCommand(t *testing.T) {
	cfgPath := writeConfig(t, "/srv/budgetease.db")

	out, err := run(t, "config", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "connection_string: Data Source=/srv/budgetease.db")
	assert.Contains(t, out, "prefix: budgetease_backup")
	assert.Contains(t, out, "retention_days: 30")
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup:\n  prefix: \"a/b\"\n"), 0o600))

	_, err := run(t, "list", "-c", path)
	assert.Error(t, err)
}

func TestWriteSnapshotsTable(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	snaps := []store.Snapshot{
		{Name: "budgetease_backup_20250510_113000.db", Size: 2048, CreatedAt: now.Add(-30 * time.Minute)},
		{Name: "budgetease_backup_20250501_120000.db", Size: 512, CreatedAt: now.Add(-9 * 24 * time.Hour)},
	}

	var buf bytes.Buffer
	writeSnapshotsTable(&buf, snaps, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "2.0 KiB")
	assert.Contains(t, lines[1], "30m")
	assert.Contains(t, lines[2], "512 B")
	assert.Contains(t, lines[2], "9d")

	buf.Reset()
	writeSnapshotsTable(&buf, nil, now)
	assert.Equal(t, "no snapshots\n", buf.String())
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "1023 B", formatSize(1023))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "1.5 MiB", formatSize(3*512*1024))
}

func TestRouter(t *testing.T) {
	m := metrics.New()
	m.BackupResult(metrics.ResultSuccess, time.Unix(1700000000, 0))
	h := newRouter(m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `budgetease_backups_total{result="success"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
