// Package fsys is the filesystem capability: directory and symlink creation
// plus existence and emptiness probes. It also provides the handlers for the
// directory, link and file resource kinds.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// FS is the filesystem surface the handlers need. Probes report a missing
// path as a normal result, never as an error.
type FS interface {
	IsDir(path string) (bool, error)
	Exists(path string) (bool, error)
	IsEmpty(path string) (bool, error)
	LinkTarget(path string) (target string, ok bool, err error)

	EnsureDir(path string, mode os.FileMode) (bool, error)
	EnsureSymlink(path, target string) (bool, error)
	CreateIfMissing(path string, mode os.FileMode) (bool, error)
}

// OS implements FS on the host filesystem.
type OS struct{}

var _ FS = OS{}

// IsDir reports whether path is an existing directory. A symlink to a
// directory counts.
func (OS) IsDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// Exists reports whether anything exists at path. Dangling symlinks exist.
func (OS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsEmpty reports whether the directory at path has no entries. A missing
// directory is empty.
func (OS) IsEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// LinkTarget returns the target of the symlink at path. ok is false when
// nothing exists at path or the path is not a symlink.
func (OS) LinkTarget(path string) (string, bool, error) {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return "", false, nil
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", false, err
	}
	return target, true, nil
}

// EnsureDir creates path and its parents. It reports whether anything was
// created; an existing directory is left alone, its mode included.
func (o OS) EnsureDir(path string, mode os.FileMode) (bool, error) {
	isDir, err := o.IsDir(path)
	if err != nil {
		return false, err
	}
	if isDir {
		return false, nil
	}
	if mode == 0 {
		mode = 0o755
	}
	if err := os.MkdirAll(path, mode); err != nil {
		return false, fmt.Errorf("create directory %s: %w", path, err)
	}
	return true, nil
}

// EnsureSymlink makes path a symlink to target, replacing a symlink with a
// different target. A regular file or directory at path is an error.
func (o OS) EnsureSymlink(path, target string) (bool, error) {
	current, isLink, err := o.LinkTarget(path)
	if err != nil {
		return false, err
	}
	if isLink && current == target {
		return false, nil
	}
	if !isLink {
		exists, err := o.Exists(path)
		if err != nil {
			return false, err
		}
		if exists {
			return false, fmt.Errorf("link %s: path exists and is not a symlink", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("link %s: %w", path, err)
	}

	// Create next to the destination and rename over it, so readers never
	// observe a missing link while it is being retargeted.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return false, fmt.Errorf("link %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("link %s: %w", path, err)
	}
	return true, nil
}

// CreateIfMissing creates an empty file at path unless something already
// exists there.
func (o OS) CreateIfMissing(path string, mode os.FileMode) (bool, error) {
	exists, err := o.Exists(path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if mode == 0 {
		mode = 0o644
	}
	if err := atomicwriter.WriteFile(path, nil, mode); err != nil {
		return false, fmt.Errorf("create file %s: %w", path, err)
	}
	return true, nil
}
