package workspace

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirCreatesNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	abs, err := EnsureDir(dir)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Errorf("expected absolute path, got %s", abs)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()

	unlock, err := Lock(dir)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	if _, err := Lock(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second lock should fail with ErrLocked, got %v", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, lockName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after unlock")
	}

	unlock, err = Lock(dir)
	if err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	unlock()
}

func TestTempFileRelease(t *testing.T) {
	dir := t.TempDir()
	f, release, err := TempFile(dir, "manifest-*.txt")
	if err != nil {
		t.Fatal(err)
	}
	name := f.Name()
	release()
	release()

	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("temp file %s still present", name)
	}
}

func TestWriteFileAtomicSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qr.png")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "data")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Errorf("content = %q, err = %v", data, err)
	}
	assertOnlyFiles(t, dir, "qr.png")
}

func TestWriteFileAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qr.png")

	boom := errors.New("encode failed")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected encode error, got %v", err)
	}
	assertOnlyFiles(t, dir)
}

func TestRemoveAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(a, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := RemoveAll(a, filepath.Join(dir, "missing.mp4"))
	if err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != a {
		t.Errorf("removed = %v", removed)
	}
}

func assertOnlyFiles(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(want) {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("directory holds %v, want %v", names, want)
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Name(), want[i])
		}
	}
}
