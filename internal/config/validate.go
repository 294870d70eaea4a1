package config

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/tileconverge/internal/resource"
)

// Validation error codes (E200-E299)
const (
	ErrSchema        = "E200" // CUE schema or YAML decoding failure
	ErrRequired      = "E201" // required field is empty
	ErrNotAbsolute   = "E202" // path must be absolute
	ErrDuplicate     = "E203" // duplicate name or colliding path
	ErrZoomRange     = "E204" // zoom outside 0-30 or min above max
	ErrInvalidURL    = "E205" // url is not http(s) or has no file name
	ErrExtractionDir = "E206" // extraction directory escapes or is the data root
	ErrInvalidValue  = "E207" // malformed scalar value
)

// maxZoom mirrors pyramid.MaxZoom.
const maxZoom = 30

// ValidationError is one problem found in a configuration.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Load when a configuration has problems.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	lines := make([]string, len(v))
	for i, e := range v {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d configuration problems:\n  %s", len(v), strings.Join(lines, "\n  "))
}

// Validate checks a configuration with defaults applied.
// Returns all errors found (does not fail-fast).
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if !filepath.IsAbs(c.SrvRoot) {
		add("srv_root", ErrNotAbsolute, "%q is not an absolute path", c.SrvRoot)
	}
	if c.RenderService == "" {
		add("render_service", ErrRequired, "render_service is required")
	}
	if c.MaxNotificationIterations < 1 {
		add("max_notification_iterations", ErrInvalidValue, "must be at least 1, got %d", c.MaxNotificationIterations)
	}
	if d, err := time.ParseDuration(c.FetchTimeout); err != nil || d <= 0 {
		add("fetch_timeout", ErrInvalidValue, "%q is not a positive duration", c.FetchTimeout)
	}
	if !c.Invalidation.Disabled {
		if !filepath.IsAbs(c.Invalidation.Queue) {
			add("invalidation.queue", ErrNotAbsolute, "%q is not an absolute path", c.Invalidation.Queue)
		}
		if c.Invalidation.Service == "" {
			add("invalidation.service", ErrRequired, "invalidation.service is required")
		}
	}

	errs = append(errs, c.validateData()...)
	errs = append(errs, c.validateStyles()...)
	return errs
}

func (c *Config) validateData() []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	type extraction struct {
		index int
		name  string
		dir   string
	}
	names := make(map[string]bool)
	archives := make(map[string]string)
	targets := make(map[string]string)
	var extractions []extraction

	for i, d := range c.Data {
		field := fmt.Sprintf("data[%d]", i)

		if d.Name == "" {
			add(field+".name", ErrRequired, "name is required")
		} else if names[d.Name] {
			add(field+".name", ErrDuplicate, "duplicate data source name: %q", d.Name)
		}
		names[d.Name] = true

		base, ok := urlBase(d.URL)
		if !ok {
			add(field+".url", ErrInvalidURL, "%q is not an http(s) URL naming a file", d.URL)
			continue
		}
		if other, dup := archives[base]; dup {
			add(field+".url", ErrDuplicate, "downloads to the same file as %q: %s", other, base)
		}
		archives[base] = d.Name

		dir := d.Directory
		if dir == "" {
			dir = resource.Stem(d.URL)
		} else if filepath.IsAbs(dir) {
			add(field+".directory", ErrExtractionDir, "%q must be relative to the data root", dir)
			continue
		}
		clean := filepath.Clean(dir)
		switch {
		case clean == "." || clean == "":
			add(field+".directory", ErrExtractionDir, "%q resolves to the data root, extraction would replace every source", dir)
			continue
		case clean == ".." || strings.HasPrefix(clean, "../"):
			add(field+".directory", ErrExtractionDir, "%q escapes the data root", dir)
			continue
		case topDir(clean) == base && resource.DetectFormat(d.URL) != resource.FormatUnknown:
			add(field+".directory", ErrExtractionDir, "%q would replace the downloaded archive", dir)
			continue
		}
		if other, dup := targets[clean]; dup && resource.DetectFormat(d.URL) != resource.FormatUnknown {
			add(field+".directory", ErrDuplicate, "extraction directory %q already used by %q", clean, other)
		}
		targets[clean] = d.Name
		if resource.DetectFormat(d.URL) != resource.FormatUnknown {
			extractions = append(extractions, extraction{index: i, name: d.Name, dir: clean})
		}
	}

	// Extraction replaces its whole directory, so it must not contain another
	// source's download or another source's extraction directory.
	for _, e := range extractions {
		field := fmt.Sprintf("data[%d].directory", e.index)
		if other, ok := archives[topDir(e.dir)]; ok && other != e.name {
			add(field, ErrExtractionDir, "%q would replace the download of %q", e.dir, other)
		}
		for _, o := range extractions {
			if o.name != e.name && strings.HasPrefix(o.dir, e.dir+"/") {
				add(field, ErrExtractionDir, "%q contains the extraction directory of %q", e.dir, o.name)
			}
		}
	}
	return errs
}

// topDir returns the first element of a clean relative path.
func topDir(rel string) string {
	top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return top
}

// urlBase returns the file name an http(s) URL downloads to.
func urlBase(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", false
	}
	return base, true
}

func (c *Config) validateStyles() []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	names := make(map[string]bool)
	for i, s := range c.Styles {
		field := fmt.Sprintf("styles[%d]", i)

		switch {
		case s.Name == "":
			add(field+".name", ErrRequired, "name is required")
		case strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == "..":
			add(field+".name", ErrInvalidValue, "%q is not a valid directory name", s.Name)
		case names[s.Name]:
			add(field+".name", ErrDuplicate, "duplicate style name: %q", s.Name)
		}
		names[s.Name] = true

		if len(s.TileDirectories) == 0 {
			add(field+".tile_directories", ErrRequired, "at least one tile directory is required")
		}
		stores := make(map[string]bool)
		for j, td := range s.TileDirectories {
			tdField := fmt.Sprintf("%s.tile_directories[%d]", field, j)
			if !filepath.IsAbs(td.Name) {
				add(tdField+".name", ErrNotAbsolute, "%q is not an absolute path", td.Name)
			} else if stores[filepath.Clean(td.Name)] {
				add(tdField+".name", ErrDuplicate, "duplicate tile directory: %q", td.Name)
			}
			stores[filepath.Clean(td.Name)] = true

			if td.MinZoom < 0 || td.MaxZoom > maxZoom {
				add(tdField, ErrZoomRange, "zoom range %d-%d outside 0-%d", td.MinZoom, td.MaxZoom, maxZoom)
			} else if td.MinZoom > td.MaxZoom {
				add(tdField, ErrZoomRange, "min_zoom %d above max_zoom %d", td.MinZoom, td.MaxZoom)
			}
		}
	}
	return errs
}
