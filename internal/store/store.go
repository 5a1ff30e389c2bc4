// Package store manages the backup directory: a flat directory of snapshot
// files named <prefix>_<YYYYMMDD>_<HHMMSS>.<ext>.
//
// The directory listing is the only inventory. Snapshots are ordered by their
// filesystem timestamp; the timestamp encoded in the name is advisory.
package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/kebairia/budgetease/internal/logger"
)

// TimestampLayout is the layout of the capture instant inside snapshot names.
const TimestampLayout = "20060102_150405"

// ErrConflict marks a snapshot whose derived name already exists.
var ErrConflict = errors.New("snapshot already exists")

// ErrNotSnapshot is returned when a name does not follow the snapshot naming
// contract of the store.
var ErrNotSnapshot = errors.New("not a snapshot of this store")

// Snapshot is a single file in the backup directory.
type Snapshot struct {
	Path string
	Name string
	Size int64
	// CreatedAt is the filesystem timestamp of the file. Snapshots are never
	// modified after they are published, so the modification time is the
	// creation instant.
	CreatedAt time.Time
}

// Store abstracts the backup directory.
type Store struct {
	dir     string
	prefix  string
	ext     string
	pattern *regexp.Regexp
	log     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New returns a store for dir. ext is given without the leading dot.
// The directory is not created until EnsureDirectory is called.
func New(dir, prefix, ext string, opts ...Option) *Store {
	ext = strings.TrimPrefix(ext, ".")
	s := &Store{
		dir:    filepath.Clean(dir),
		prefix: prefix,
		ext:    ext,
		pattern: regexp.MustCompile(
			"^" + regexp.QuoteMeta(prefix) + `_\d{8}_\d{6}\.` + regexp.QuoteMeta(ext) + "$",
		),
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the backup directory.
func (s *Store) Dir() string { return s.dir }

// EnsureDirectory creates the backup directory and any missing parents.
func (s *Store) EnsureDirectory() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create backup directory %q", s.dir)
	}
	return nil
}

// Matches reports whether name follows the snapshot naming contract.
func (s *Store) Matches(name string) bool {
	return s.pattern.MatchString(name)
}

// BuildSnapshotPath derives the snapshot path for the capture instant t.
// The instant is rendered in UTC with second precision, so two captures in
// the same second map to the same path.
func (s *Store) BuildSnapshotPath(t time.Time) string {
	name := s.prefix + "_" + t.UTC().Format(TimestampLayout) + "." + s.ext
	return filepath.Join(s.dir, name)
}

// ListSnapshots returns every snapshot in the backup directory, most recent
// first. A missing or empty directory yields an empty slice and no error.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read backup directory %q", s.dir)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, ent := range entries {
		if !ent.Type().IsRegular() || !s.Matches(ent.Name()) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			// removed between ReadDir and Info
			s.log.Debug("skipping vanished snapshot", "name", ent.Name(), "error", err)
			continue
		}
		snapshots = append(snapshots, fromInfo(filepath.Join(s.dir, ent.Name()), info))
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		a, b := snapshots[i], snapshots[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Name > b.Name
	})
	return snapshots, nil
}

// ListTemps returns the temporary files left in the backup directory by
// writes that never completed, such as after a crash mid-copy.
func (s *Store) ListTemps() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read backup directory %q", s.dir)
	}

	var temps []Snapshot
	for _, ent := range entries {
		if !ent.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(tempPattern, ent.Name()); !ok {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		temps = append(temps, fromInfo(filepath.Join(s.dir, ent.Name()), info))
	}
	return temps, nil
}

// Resolve finds a snapshot by file name or by path inside the backup
// directory.
func (s *Store) Resolve(nameOrPath string) (Snapshot, error) {
	name := filepath.Base(nameOrPath)
	if !s.Matches(name) {
		return Snapshot{}, errors.Wrapf(ErrNotSnapshot, "%q", nameOrPath)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "stat snapshot %q", path)
	}
	return fromInfo(path, info), nil
}

// Remove deletes a snapshot. A snapshot that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	err := retry(ctx, "remove", func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "remove snapshot %q", path)
	}
	return nil
}

func fromInfo(path string, info fs.FileInfo) Snapshot {
	return Snapshot{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}
}
