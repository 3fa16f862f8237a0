package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/groom/internal/fingerprint"
	"github.com/roach88/groom/internal/gitutil"
	"github.com/roach88/groom/internal/permits"
)

// readSource reads path and fingerprints it in one pass, holding a file
// permit while the file is open.
func readSource(ctx context.Context, pool *permits.Pool, path string) ([]byte, fingerprint.Sum, error) {
	release, err := pool.AcquireFile(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	data, sum, err := fingerprint.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return data, sum, nil
}

// writeAtomic replaces path with data. The new content is written to a
// private directory beside the destination, synced, given the destination's
// mode and renamed over it, so readers see either the old or the new file.
// Symlinks are followed and their target replaced.
func writeAtomic(ctx context.Context, pool *permits.Pool, path string, data []byte) (err error) {
	release, err := pool.AcquireFile(ctx)
	if err != nil {
		return err
	}
	defer release()

	dest, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dest, err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(dest), gitutil.TempDirPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp dir for %s: %w", dest, err)
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(tmpDir))
	}()

	tmp := filepath.Join(tmpDir, filepath.Base(dest))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
