package archive

import (
	"bufio"
	"context"
	"fmt"
	"os"

	mobyarchive "github.com/moby/go-archive"
	"github.com/moby/go-archive/compression"
)

// Compression names the stream compression a Tar extractor expects.
type Compression = compression.Compression

const (
	Gzip  = compression.Gzip
	Bzip2 = compression.Bzip2
)

// Tar extracts compressed tarballs. The stream's magic bytes must match
// Compression; a .tgz that is really bzip2 (or not compressed at all) is
// rejected as corrupt.
type Tar struct {
	Compression Compression
}

// Extract implements Extractor.
func (t Tar) Extract(ctx context.Context, archivePath, destDir string) error {
	if err := ctx.Err(); err != nil {
		return &ExtractionError{Archive: archivePath, Dir: destDir, Err: err}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Dir: destDir, Err: err}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(10)
	if got := compression.Detect(magic); got != t.Compression {
		return &ExtractionError{
			Archive: archivePath,
			Dir:     destDir,
			Err:     fmt.Errorf("expected %s stream, found %s", name(t.Compression), name(got)),
		}
	}

	err = replaceDir(destDir, func(dir string) error {
		return mobyarchive.Untar(br, dir, &mobyarchive.TarOptions{NoLchown: true})
	})
	if err != nil {
		return &ExtractionError{Archive: archivePath, Dir: destDir, Err: err}
	}
	return nil
}

func name(c Compression) string {
	switch c {
	case compression.None:
		return "uncompressed"
	case compression.Gzip:
		return "gzip"
	case compression.Bzip2:
		return "bzip2"
	case compression.Xz:
		return "xz"
	case compression.Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}
