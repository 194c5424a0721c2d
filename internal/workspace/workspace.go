// Package workspace owns the output directory: creating it, locking it
// against concurrent runs, and the scoped temporary files written into it.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockName = ".qrcast.lock"

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("output directory is locked by another run")

// EnsureDir creates dir and its parents and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return abs, nil
}

// Lock takes an exclusive, non-blocking lock on dir. The returned func
// releases it and removes the lock file.
func Lock(dir string) (func() error, error) {
	path := filepath.Join(dir, lockName)
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	return func() error {
		if err := fl.Unlock(); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}

// TempFile creates a temporary file in dir. The release func closes and
// removes it and is safe to call more than once.
func TempFile(dir, pattern string) (*os.File, func(), error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, nil, err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		f.Close()
		os.Remove(f.Name())
	}
	return f, release, nil
}

// WriteFileAtomic streams write into a temporary sibling of path and
// renames it into place on success. On any failure the temporary file is
// removed and path is left as it was.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	f, release, err := TempFile(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer release()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// RemoveAll deletes the given files, ignoring ones already gone, and
// returns the paths actually removed.
func RemoveAll(paths ...string) ([]string, error) {
	var removed []string
	var errs []error
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case os.IsNotExist(err):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
