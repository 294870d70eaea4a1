// Package archive is the archive extractor capability. Every extractor
// replaces the full contents of its destination directory: the archive is
// unpacked into a temporary sibling which is swapped in only on success.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/tileconverge/internal/resource"
)

// Extractor unpacks one archive format.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Registry maps formats to their extractors.
type Registry map[resource.ArchiveFormat]Extractor

// Default returns extractors for every known format.
func Default() Registry {
	return Registry{
		resource.FormatTarGzip:  Tar{Compression: Gzip},
		resource.FormatTarBzip2: Tar{Compression: Bzip2},
		resource.FormatZip:      Zip{},
	}
}

// Lookup returns the extractor for format.
func (r Registry) Lookup(format resource.ArchiveFormat) (Extractor, error) {
	x, ok := r[format]
	if !ok {
		return nil, fmt.Errorf("no extractor for format %q", format)
	}
	return x, nil
}

// ExtractionError is fatal to a pass: the archive is corrupt or could not be
// unpacked, and its content must not reach rendering.
type ExtractionError struct {
	Archive string
	Dir     string
	Err     error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s into %s: %v", e.Archive, e.Dir, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionError reports whether err is an ExtractionError.
func IsExtractionError(err error) bool {
	var xe *ExtractionError
	return errors.As(err, &xe)
}

// replaceDir fills a fresh temporary sibling of dest and swaps it in place
// of dest. On error dest is left as it was and the temporary is removed.
func replaceDir(dest string, fill func(dir string) error) error {
	dest = filepath.Clean(dest)
	parent, base := filepath.Split(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(parent, "."+base+".extract-")
	if err != nil {
		return err
	}
	cleanup := func() { os.RemoveAll(tmp) }

	if err := os.Chmod(tmp, 0o755); err != nil {
		cleanup()
		return err
	}
	if err := fill(tmp); err != nil {
		cleanup()
		return err
	}

	old := tmp + ".old"
	hadOld := true
	if err := os.Rename(dest, old); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			cleanup()
			return err
		}
		hadOld = false
	}
	if err := os.Rename(tmp, dest); err != nil {
		if hadOld {
			_ = os.Rename(old, dest)
		}
		cleanup()
		return err
	}
	if hadOld {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove previous contents: %w", err)
		}
	}
	return nil
}
