package operations

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/kebairia/budgetease/internal/store"
)

// ArchiveExt is appended to exported snapshots.
const ArchiveExt = ".zst"

// Export writes a zstd-compressed copy of a snapshot to out and returns the
// archive path. An empty out writes <snapshot name>.zst in the working
// directory. The snapshot is identified by file name or path.
func (om *OperationManager) Export(ctx context.Context, snapshot, out string) (string, error) {
	snap, err := om.store.Resolve(snapshot)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = snap.Name + ArchiveExt
	}

	in, err := os.Open(snap.Path)
	if err != nil {
		return "", errors.Wrapf(err, "open snapshot %q", snap.Path)
	}
	defer in.Close()

	start := time.Now()
	pr, pw := io.Pipe()
	defer pr.Close()

	go func() {
		pw.CloseWithError(compressZstd(pw, in))
	}()

	if err := store.ReplaceFile(ctx, out, pr); err != nil {
		return "", errors.Wrap(err, "write archive")
	}

	om.log.Info("snapshot exported",
		"snapshot", snap.Name,
		"archive", out,
		"duration", time.Since(start).String(),
	)
	return out, nil
}

// Import decompresses an archive produced by Export into a new snapshot named
// for the current time. The usual publish rules apply: an existing snapshot
// with the same name is never overwritten.
func (om *OperationManager) Import(ctx context.Context, archive string) (string, error) {
	if !strings.HasSuffix(archive, ArchiveExt) {
		om.log.Warn("archive does not have the expected extension", "archive", archive, "ext", ArchiveExt)
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", errors.Wrapf(err, "open archive %q", archive)
	}
	defer f.Close()

	if err := om.store.EnsureDirectory(); err != nil {
		return "", err
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return "", errors.Wrap(err, "create zstd reader")
	}
	defer dec.Close()

	path, err := om.store.Publish(ctx, dec, om.now())
	if err != nil {
		return "", errors.Wrapf(err, "import %q", filepath.Base(archive))
	}

	om.log.Info("snapshot imported", "archive", archive, "path", path)
	om.service.Snapshots() // refresh the snapshot gauge
	return path, nil
}

func compressZstd(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "create zstd writer")
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return errors.Wrap(err, "compress snapshot")
	}
	return enc.Close()
}
