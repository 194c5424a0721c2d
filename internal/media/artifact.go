// Package media describes the file-backed artifacts passed between
// pipeline stages.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Artifact is a media file identified by its absolute path. Stages create
// exactly one artifact each and never modify their inputs. Existence is
// checked lazily at the point of use.
type Artifact struct {
	Path string
	Kind Kind
}

// New resolves path to an absolute path. It does not touch the file.
func New(path string, kind Kind) (Artifact, error) {
	if path == "" {
		return Artifact{}, fmt.Errorf("%s artifact: empty path", kind)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s artifact %s: %w", kind, path, err)
	}
	return Artifact{Path: abs, Kind: kind}, nil
}

// Exists reports whether the file is present.
func (a Artifact) Exists() bool {
	_, err := os.Stat(a.Path)
	return err == nil
}

// Size returns the file size in bytes, or 0 if the file is missing.
func (a Artifact) Size() uint64 {
	info, err := os.Stat(a.Path)
	if err != nil || info.Size() < 0 {
		return 0
	}
	return uint64(info.Size())
}

// Require fails with fs.ErrNotExist wrapped when the file is missing or
// is a directory.
func (a Artifact) Require() error {
	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.Kind, a.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s: is a directory: %w", a.Kind, a.Path, fs.ErrNotExist)
	}
	return nil
}

// IsNotExist reports whether err came from Require on a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.Path)
}
