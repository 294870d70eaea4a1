package config

import (
	"path/filepath"
	"time"

	"github.com/roach88/tileconverge/internal/digest"
	"github.com/roach88/tileconverge/internal/resource"
)

// Defaults.
const (
	DefaultSrvRoot       = "/srv/tile.openstreetmap.org"
	DefaultRenderService = "renderd.service"
	DefaultQueue         = "/var/lib/replicate/expire-queue"
	DefaultQueueService  = "expire-tiles.service"
	DefaultStateDB       = "/var/lib/tileconverge/state.db"
	DefaultIterations    = 16
	DefaultFetchTimeout  = "10m"
)

// Config is the whole fleet configuration of one host.
type Config struct {
	SrvRoot                   string       `json:"srv_root" yaml:"srv_root"`
	Data                      []DataSource `json:"data,omitempty" yaml:"data"`
	Styles                    []Style      `json:"styles,omitempty" yaml:"styles"`
	RenderService             string       `json:"render_service" yaml:"render_service"`
	Invalidation              Invalidation `json:"invalidation" yaml:"invalidation"`
	MaxNotificationIterations int          `json:"max_notification_iterations" yaml:"max_notification_iterations"`
	StateDB                   string       `json:"state_db" yaml:"state_db"`
	FetchTimeout              string       `json:"fetch_timeout" yaml:"fetch_timeout"`
	ShapeIndexBinary          string       `json:"shapeindex_binary,omitempty" yaml:"shapeindex_binary"`
}

// DataSource is one archive to download and unpack under the data root.
type DataSource struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	// Directory is relative to the data root. Empty means the archive's
	// stem.
	Directory string `json:"directory,omitempty" yaml:"directory"`
	// Refresh re-fetches conditionally on every pass. Without it the
	// archive is fetched once.
	Refresh bool `json:"refresh" yaml:"refresh"`
}

// Policy returns the refresh policy selected by Refresh.
func (d DataSource) Policy() resource.RefreshPolicy {
	if d.Refresh {
		return resource.Revalidate
	}
	return resource.CreateIfMissing
}

// Style is a rendering style and its ordered tile stores.
type Style struct {
	Name            string          `json:"name" yaml:"name"`
	TileDirectories []TileDirectory `json:"tile_directories,omitempty" yaml:"tile_directories"`
	// LinkData creates <srv_root>/styles/<name>/data pointing at the data
	// root.
	LinkData bool `json:"link_data" yaml:"link_data"`
}

// TileDirectory is one physical tile store.
type TileDirectory struct {
	Name    string `json:"name" yaml:"name"`
	MinZoom int    `json:"min_zoom" yaml:"min_zoom"`
	MaxZoom int    `json:"max_zoom" yaml:"max_zoom"`
}

// Invalidation names the expire queue and the service draining it.
type Invalidation struct {
	Queue    string `json:"queue" yaml:"queue"`
	Service  string `json:"service" yaml:"service"`
	Disabled bool   `json:"disabled" yaml:"disabled"`
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.SrvRoot == "" {
		c.SrvRoot = DefaultSrvRoot
	}
	if c.RenderService == "" {
		c.RenderService = DefaultRenderService
	}
	if c.Invalidation.Queue == "" {
		c.Invalidation.Queue = DefaultQueue
	}
	if c.Invalidation.Service == "" {
		c.Invalidation.Service = DefaultQueueService
	}
	if c.MaxNotificationIterations == 0 {
		c.MaxNotificationIterations = DefaultIterations
	}
	if c.StateDB == "" {
		c.StateDB = DefaultStateDB
	}
	if c.FetchTimeout == "" {
		c.FetchTimeout = DefaultFetchTimeout
	}
}

// DataDir is the root every data source is downloaded into.
func (c *Config) DataDir() string {
	return filepath.Join(c.SrvRoot, "data")
}

// TilesDir is the parent of every style's tile root.
func (c *Config) TilesDir() string {
	return filepath.Join(c.SrvRoot, "tiles")
}

// TileRoot is the directory holding a style's per-zoom links.
func (c *Config) TileRoot(style string) string {
	return filepath.Join(c.TilesDir(), style)
}

// StylesDir is the parent of every style's project directory.
func (c *Config) StylesDir() string {
	return filepath.Join(c.SrvRoot, "styles")
}

// StyleDir is a style's project directory.
func (c *Config) StyleDir(style string) string {
	return filepath.Join(c.StylesDir(), style)
}

// Timeout returns FetchTimeout parsed. Validate rejects unparsable values.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Digest identifies the configuration a pass ran with.
func (c *Config) Digest() (string, error) {
	return digest.Of(digest.DomainConfig, c)
}
