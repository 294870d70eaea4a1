package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	units "github.com/docker/go-units"

	"github.com/roach88/tileconverge/internal/resource"
)

// Result is the outcome of a successful fetch.
type Result int

const (
	// Unchanged means the local file already matched the source.
	Unchanged Result = iota
	// Changed means new content was written to the destination.
	Changed
)

func (r Result) String() string {
	if r == Changed {
		return "changed"
	}
	return "unchanged"
}

// Fetcher downloads url to dest according to policy.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, policy resource.RefreshPolicy) (Result, error)
}

// DefaultTimeout bounds one download, body included.
const DefaultTimeout = 10 * time.Minute

// HTTP fetches over http and https.
type HTTP struct {
	client     *http.Client
	validators Validators
	timeout    time.Duration
	mode       os.FileMode
	logger     *slog.Logger
}

var _ Fetcher = (*HTTP)(nil)

// Option configures an HTTP fetcher.
type Option func(*HTTP)

// WithClient sets the http client. Default: http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithValidators sets where ETags are remembered between passes.
// Default: an in-memory set that forgets them when the process exits.
func WithValidators(v Validators) Option {
	return func(h *HTTP) {
		if v != nil {
			h.validators = v
		}
	}
}

// WithTimeout bounds a single download. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		h.timeout = d
	}
}

// WithFileMode sets the mode of downloaded files. Default: 0644.
func WithFileMode(mode os.FileMode) Option {
	return func(h *HTTP) {
		h.mode = mode
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		client:     http.DefaultClient,
		validators: NewMemoryValidators(),
		timeout:    DefaultTimeout,
		mode:       0o644,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch downloads url to dest.
//
// Under CreateIfMissing an existing dest is never touched and no request is
// made. Under Revalidate the request is conditional on the local copy.
//
// Errors are *FetchFailure.
func (h *HTTP) Fetch(ctx context.Context, url, dest string, policy resource.RefreshPolicy) (Result, error) {
	local, err := os.Stat(dest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Unchanged, &FetchFailure{URL: url, Err: err}
	}
	exists := err == nil
	if exists && policy == resource.CreateIfMissing {
		return Unchanged, nil
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unchanged, &FetchFailure{URL: url, Err: err}
	}
	if exists && policy == resource.Revalidate {
		req.Header.Set("If-Modified-Since", local.ModTime().UTC().Format(http.TimeFormat))
		etag, ok, err := h.validators.Validator(ctx, url)
		if err != nil {
			h.logger.Warn("validator lookup failed", "url", url, "error", err)
		} else if ok {
			req.Header.Set("If-None-Match", etag)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Unchanged, &FetchFailure{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		h.logger.Debug("not modified", "url", url, "dest", dest)
		return Unchanged, nil
	case resp.StatusCode != http.StatusOK:
		return Unchanged, &FetchFailure{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	n, err := h.write(resp.Body, dest)
	if err != nil {
		return Unchanged, &FetchFailure{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		if err := os.Chtimes(dest, lm, lm); err != nil {
			h.logger.Warn("set mtime failed", "dest", dest, "error", err)
		}
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		if err := h.validators.SaveValidator(ctx, url, etag); err != nil {
			h.logger.Warn("validator save failed", "url", url, "error", err)
		}
	}

	h.logger.Info("fetched",
		"url", url,
		"dest", dest,
		"size", units.HumanSize(float64(n)),
	)
	return Changed, nil
}

// write streams body into a temporary sibling of dest and renames it into
// place once the body has been read completely.
func (h *HTTP) write(body io.Reader, dest string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".download-*")
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Chmod(tmp.Name(), h.mode); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, err
	}
	committed = true
	return n, nil
}
