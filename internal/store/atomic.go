package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

// tempPattern never matches the snapshot naming contract, so in-flight
// writes are invisible to ListSnapshots.
const tempPattern = ".budgetease-*.tmp"

// Publish streams src into a new snapshot named for the capture instant at.
// The bytes are written to a temporary file first and then linked to the
// final name, which never replaces an existing file: if the name is taken
// the call fails with ErrConflict and the existing snapshot is untouched.
// On cancellation or failure no file is left under the final name.
func (s *Store) Publish(ctx context.Context, src io.Reader, at time.Time) (string, error) {
	final := s.BuildSnapshotPath(at)
	if err := s.checkFree(final); err != nil {
		return "", err
	}

	tmp, err := WriteTemp(ctx, s.dir, src)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	err = os.Link(tmp, final)
	switch {
	case err == nil:
		return final, nil
	case errors.Is(err, fs.ErrExist):
		return "", conflict(final)
	case linkUnsupported(err):
		// filesystems without hard links: re-check and rename instead
		s.log.Debug("hard links unsupported, publishing by rename", "path", final, "error", err)
		if err := s.checkFree(final); err != nil {
			return "", err
		}
		if err := retry(ctx, "rename", func() error { return os.Rename(tmp, final) }); err != nil {
			return "", errors.Wrapf(err, "publish snapshot %q", final)
		}
		return final, nil
	default:
		return "", errors.Wrapf(err, "publish snapshot %q", final)
	}
}

func (s *Store) checkFree(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return conflict(path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "stat %q", path)
	}
	return nil
}

func conflict(path string) error {
	return errors.Wrapf(ErrConflict, "publish %q", path)
}

func linkUnsupported(err error) bool {
	return errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EXDEV) ||
		errors.Is(err, syscall.EMLINK)
}

// ReplaceFile atomically writes src to dst, creating parent directories as
// needed. dst is only ever replaced by a fully written and synced file.
func ReplaceFile(ctx context.Context, dst string, src io.Reader) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %q", dir)
	}

	tmp, err := WriteTemp(ctx, dir, src)
	if err != nil {
		return err
	}
	defer func() {
		if _, statErr := os.Stat(tmp); statErr == nil {
			os.Remove(tmp)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := retry(ctx, "rename", func() error { return os.Rename(tmp, dst) }); err != nil {
		return errors.Wrapf(err, "replace %q", dst)
	}
	return nil
}

// WriteTemp copies src into a new temporary file inside dir and returns its
// path. The copy observes ctx between reads; on any failure the temporary
// file is removed.
func WriteTemp(ctx context.Context, dir string, src io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	name := f.Name()

	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, "write temp file")
	}
	return name, nil
}

// ctxReader fails the next Read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
