package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Zip extracts zip files.
type Zip struct{}

// Extract implements Extractor. Entries escaping the destination are
// rejected.
func (Zip) Extract(ctx context.Context, archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Dir: destDir, Err: err}
	}
	defer zr.Close()

	err = replaceDir(destDir, func(dir string) error {
		for _, f := range zr.File {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := unzipEntry(f, dir); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &ExtractionError{Archive: archivePath, Dir: destDir, Err: err}
	}
	return nil
}

func unzipEntry(f *zip.File, dir string) error {
	target := filepath.Join(dir, f.Name)
	if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return fmt.Errorf("entry %q escapes destination", f.Name)
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(target, 0o755)
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("entry %q: symlinks are not supported", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("entry %q: %w", f.Name, err)
	}
	return out.Close()
}
