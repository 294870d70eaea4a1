package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/tileconverge/internal/archive"
	"github.com/roach88/tileconverge/internal/fetch"
	"github.com/roach88/tileconverge/internal/resource"
	"github.com/roach88/tileconverge/internal/shapeindex"
)

// CallLog is an ordered record of capability calls, one line per call, e.g.
// "fetch https://example.org/land.tgz" or "restart renderd.service".
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends one formatted line.
func (l *CallLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded lines.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Reset forgets every recorded line.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Fetcher serves in-memory bodies per URL and writes them to the real
// destination path. A body identical to the file on disk is reported as
// Unchanged, which is how a conditional GET behaves.
type Fetcher struct {
	Log *CallLog

	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
}

var _ fetch.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher with nothing to serve.
func NewFetcher(log *CallLog) *Fetcher {
	return &Fetcher{
		Log:    log,
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
	}
}

// Serve makes url return body and clears any failure set with Fail.
func (f *Fetcher) Serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
	delete(f.errs, url)
}

// Fail makes every request for url fail with err.
func (f *Fetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// Fetch implements fetch.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, url, dest string, policy resource.RefreshPolicy) (fetch.Result, error) {
	current, err := os.ReadFile(dest)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fetch.Unchanged, &fetch.FetchFailure{URL: url, Err: err}
	}
	if exists && policy == resource.CreateIfMissing {
		return fetch.Unchanged, nil
	}

	f.Log.Add("fetch %s", url)

	f.mu.Lock()
	body, ok := f.bodies[url]
	failure := f.errs[url]
	f.mu.Unlock()

	if failure != nil {
		return fetch.Unchanged, &fetch.FetchFailure{URL: url, Err: failure}
	}
	if !ok {
		return fetch.Unchanged, &fetch.FetchFailure{URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	if exists && bytes.Equal(current, body) {
		return fetch.Unchanged, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fetch.Unchanged, &fetch.FetchFailure{URL: url, Err: err}
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return fetch.Unchanged, &fetch.FetchFailure{URL: url, Err: err}
	}
	return fetch.Changed, nil
}

// Extractor records extractions and replaces the destination with an empty
// directory. Err, when set, fails every extraction.
type Extractor struct {
	Log *CallLog
	Err error
}

var _ archive.Extractor = (*Extractor)(nil)

// Extract implements archive.Extractor.
func (x *Extractor) Extract(_ context.Context, archivePath, destDir string) error {
	x.Log.Add("extract %s %s", filepath.Base(archivePath), destDir)
	if x.Err != nil {
		return &archive.ExtractionError{Archive: archivePath, Dir: destDir, Err: x.Err}
	}
	if err := os.RemoveAll(destDir); err != nil {
		return err
	}
	return os.MkdirAll(destDir, 0o755)
}

// Registry returns an archive.Registry that routes every known format to x.
func (x *Extractor) Registry() archive.Registry {
	return archive.Registry{
		resource.FormatTarGzip:  x,
		resource.FormatTarBzip2: x,
		resource.FormatZip:      x,
	}
}

// Indexer records index calls. Err, when set, fails every call.
type Indexer struct {
	Log *CallLog
	Err error
}

var _ shapeindex.Indexer = (*Indexer)(nil)

// Index implements shapeindex.Indexer.
func (i *Indexer) Index(_ context.Context, dir string) error {
	i.Log.Add("index %s", dir)
	if i.Err != nil {
		return &shapeindex.IndexingError{Dir: dir, Err: i.Err}
	}
	return nil
}

// Controller is an in-memory service controller. Units start inactive.
type Controller struct {
	Log *CallLog

	mu     sync.Mutex
	active map[string]bool
	errs   map[string]error
}

// NewController creates a controller with every unit inactive.
func NewController(log *CallLog) *Controller {
	return &Controller{
		Log:    log,
		active: make(map[string]bool),
		errs:   make(map[string]error),
	}
}

// Fail makes every job on unit fail with err.
func (c *Controller) Fail(unit string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[unit] = err
}

// SetActive overrides the active state of unit.
func (c *Controller) SetActive(unit string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[unit] = active
}

func (c *Controller) Start(_ context.Context, unit string) error {
	return c.job("start", unit, true)
}

func (c *Controller) Stop(_ context.Context, unit string) error {
	return c.job("stop", unit, false)
}

func (c *Controller) Restart(_ context.Context, unit string) error {
	return c.job("restart", unit, true)
}

func (c *Controller) Reload(_ context.Context, unit string) error {
	return c.job("reload", unit, true)
}

// Active reports the unit's recorded state. Probes are not logged.
func (c *Controller) Active(_ context.Context, unit string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[unit], nil
}

func (c *Controller) job(op, unit string, active bool) error {
	c.Log.Add("%s %s", op, unit)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[unit]; err != nil {
		return err
	}
	c.active[unit] = active
	return nil
}
