package database

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kebairia/budgetease/internal/config"
)

// ErrNotRegularFile is returned when the live data store path is a directory
// or another non-regular file.
var ErrNotRegularFile = errors.New("live data store is not a regular file")

// Database describes the live data store the backup subsystem protects.
type Database interface {
	GetName() string
	GetEngine() string
	// GetPath returns the absolute path of the live data store file.
	GetPath() string
	// Exists reports whether the live data store file is present.
	Exists() (bool, error)
}

const EngineSQLite = "sqlite"

// SQLite is a single-file SQLite data store.
type SQLite struct {
	path string
}

var _ Database = (*SQLite)(nil)

// NewSQLite returns the data store located at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: filepath.Clean(path)}
}

// FromConnectionString derives the data store from a "Data Source=<path>"
// connection string.
func FromConnectionString(conn string) *SQLite {
	return NewSQLite(config.ParseDataSource(conn))
}

// GetName returns the file name without its extension, e.g. "budgetease".
func (s *SQLite) GetName() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GetEngine returns the engine name.
func (s *SQLite) GetEngine() string { return EngineSQLite }

// GetPath returns the data store file path.
func (s *SQLite) GetPath() string { return s.path }

// Exists reports whether the data store file is present. A missing file is
// not an error.
func (s *SQLite) Exists() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat live data store %q", s.path)
	}
	if !info.Mode().IsRegular() {
		return false, errors.Wrapf(ErrNotRegularFile, "%s", s.path)
	}
	return true, nil
}
