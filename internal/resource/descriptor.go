package resource

import (
	"os"
	"path"
	"strings"
)

// Descriptor is the kind-specific desired state of a resource. The engine
// never looks inside a descriptor; handlers type-switch on it.
type Descriptor interface {
	Kind() Kind
}

// DirectoryState describes a directory that must exist.
type DirectoryState struct {
	Path string
	Mode os.FileMode
}

func (DirectoryState) Kind() Kind { return KindDirectory }

// LinkState describes a symlink at Path pointing at Target.
type LinkState struct {
	Path   string
	Target string
}

func (LinkState) Kind() Kind { return KindLink }

// FileState describes a plain file. Only its existence is managed.
type FileState struct {
	Path string
	Mode os.FileMode
}

func (FileState) Kind() Kind { return KindFile }

// RefreshPolicy selects how a remote file is kept current.
type RefreshPolicy string

const (
	// Revalidate re-fetches conditionally on every pass.
	Revalidate RefreshPolicy = "always-revalidate"
	// CreateIfMissing fetches once and never again while the file exists.
	CreateIfMissing RefreshPolicy = "create-if-missing"
)

// RemoteFileState describes a file downloaded from URL to Path.
type RemoteFileState struct {
	URL    string
	Path   string
	Policy RefreshPolicy
	Mode   os.FileMode
}

func (RemoteFileState) Kind() Kind { return KindRemoteFile }

// ArchiveFormat is derived from a source URL's suffix.
type ArchiveFormat string

const (
	FormatTarGzip  ArchiveFormat = "tgz"
	FormatTarBzip2 ArchiveFormat = "tar.bz2"
	FormatZip      ArchiveFormat = "zip"
	FormatUnknown  ArchiveFormat = "unknown"
)

// archiveSuffixes is checked in order; the first match wins.
var archiveSuffixes = []struct {
	suffix string
	format ArchiveFormat
}{
	{".tgz", FormatTarGzip},
	{".tar.bz2", FormatTarBzip2},
	{".zip", FormatZip},
}

// DetectFormat selects the archive format from the URL's suffix. Query
// strings and fragments are ignored.
func DetectFormat(rawURL string) ArchiveFormat {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(p, s.suffix) {
			return s.format
		}
	}
	return FormatUnknown
}

// Stem returns the basename of rawURL without its archive suffix.
func Stem(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(p)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(base, s.suffix) {
			return strings.TrimSuffix(base, s.suffix)
		}
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// ArchiveDescriptor is the ingestion view of one data source.
type ArchiveDescriptor struct {
	Name      string
	URL       string
	Archive   string // local download path
	TargetDir string
	Format    ArchiveFormat
	Policy    RefreshPolicy
}

// ExtractState describes unpacking Archive into Dir.
type ExtractState struct {
	Archive string
	Dir     string
	Format  ArchiveFormat
}

func (ExtractState) Kind() Kind { return KindExtract }

// IndexState describes building spatial index sidecars under Dir.
type IndexState struct {
	Dir string
}

func (IndexState) Kind() Kind { return KindShapeIndex }

// WatchState describes an edge-triggered watch on Dir becoming non-empty.
type WatchState struct {
	Dir string
}

func (WatchState) Kind() Kind { return KindDirWatch }

// ServiceState describes a supervised service unit.
type ServiceState struct {
	Unit string
}

func (ServiceState) Kind() Kind { return KindService }
