package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_Exists(t *testing.T) {
	dir := t.TempDir()
	db := NewSQLite(filepath.Join(dir, "budgetease.db"))

	ok, err := db.Exists()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(db.GetPath(), []byte("data"), 0o600))
	ok, err = db.Exists()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_ExistsRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	db := NewSQLite(dir)

	ok, err := db.Exists()
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNotRegularFile))
	file, _, _, ok := errors.GetOneLineSource(err)
	assert.True(t, ok)
	assert.Equal(t, "database.go", file)
}

func TestFromConnectionString(t *testing.T) {
	db := FromConnectionString("Data Source=/data/events/budgetease.db;Cache=Shared")

	assert.Equal(t, "/data/events/budgetease.db", db.GetPath())
	assert.Equal(t, "budgetease", db.GetName())
	assert.Equal(t, EngineSQLite, db.GetEngine())
}
