// Package shapeindex is the spatial indexer capability. It finds shapefile
// payloads under a directory and builds a .index sidecar next to each one
// with mapnik's shapeindex tool.
package shapeindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Indexer builds spatial indexes for the shapefiles under a directory.
// A directory with no shapefiles is not an error.
type Indexer interface {
	Index(ctx context.Context, dir string) error
}

const (
	// DefaultBinary is the mapnik-utils index builder.
	DefaultBinary = "shapeindex"

	// DefaultBatchSize bounds the shapefiles passed to one invocation, which
	// keeps the argument list under ARG_MAX for large trees.
	DefaultBatchSize = 256
)

// Command runs an external shapeindex binary, once per batch of files.
type Command struct {
	Binary    string
	BatchSize int
	Logger    *slog.Logger
}

var _ Indexer = Command{}

// Index implements Indexer.
func (c Command) Index(ctx context.Context, dir string) error {
	files, err := Find(dir)
	if err != nil {
		return &IndexingError{Dir: dir, Err: err}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(files) == 0 {
		logger.Debug("no shapefiles to index", "dir", dir)
		return nil
	}

	bin := c.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	size := c.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for start := 0; start < len(files); start += size {
		batch := files[start:min(start+size, len(files))]
		if err := run(ctx, bin, batch); err != nil {
			return &IndexingError{Dir: dir, Files: batch, Err: err}
		}
	}
	logger.Info("shapefiles indexed", "dir", dir, "files", len(files))
	return nil
}

func run(ctx context.Context, bin string, files []string) error {
	cmd := exec.CommandContext(ctx, bin, append([]string{"--shape_files"}, files...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}

// Find returns the shapefiles under dir, recursively, sorted. The suffix
// match is case-insensitive. A missing dir has no shapefiles.
func Find(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".shp") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// IndexingError is fatal to a pass: the extracted data could not be indexed
// and must not reach rendering.
type IndexingError struct {
	Dir   string
	Files []string
	Err   error
}

// Error implements the error interface.
func (e *IndexingError) Error() string {
	return fmt.Sprintf("index %s (%d shapefiles): %v", e.Dir, len(e.Files), e.Err)
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}

// IsIndexingError reports whether err is an IndexingError.
func IsIndexingError(err error) bool {
	var ie *IndexingError
	return errors.As(err, &ie)
}
