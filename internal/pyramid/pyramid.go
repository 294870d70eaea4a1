// Package pyramid derives a style's per-zoom tile layout from its physical
// tile stores and expresses it as directory, link and file resources.
//
// Every store gets a subdirectory per zoom level it covers, and the style's
// tile root gets one symlink per zoom pointing into the store that serves
// it. Stores may overlap: the last declared store covering a zoom wins its
// link, which lets an operator move a zoom band to new storage by appending
// a store without removing the old one. The winner is decided when the
// layout is planned, so a pass never flips a link back and forth.
package pyramid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/roach88/tileconverge/internal/resource"
)

// MarkerName is the file recording that the initial bulk import finished.
const MarkerName = "planet-import-complete"

// MaxZoom is the deepest zoom level a store may declare.
const MaxZoom = 30

// Store is one physical tile store.
type Store struct {
	Path    string
	MinZoom int
	MaxZoom int
}

// Style is a rendering style and its ordered tile stores.
type Style struct {
	Name     string
	TileRoot string
	Stores   []Store

	// StyleDir, when set, gets a "data" link to DataDir so the style's
	// project files can reach the shared data sources.
	StyleDir string
	DataDir  string
}

// Link is a symlink at Path pointing at Target.
type Link struct {
	Path   string
	Target string
}

// ZoomLink is the link serving one zoom level.
type ZoomLink struct {
	Zoom int
	Link
}

// Layout is the planned filesystem shape of one style.
type Layout struct {
	Style    string
	TileRoot string
	// Dirs lists every physical directory in creation order: each store's
	// root followed by its zoom subdirectories.
	Dirs []string
	// Links holds one link per served zoom, ascending.
	Links  []ZoomLink
	Marker string

	StyleDir string
	DataLink *Link
}

// Plan computes the layout of s.
func Plan(s Style) (Layout, error) {
	if err := validate(s); err != nil {
		return Layout{}, err
	}

	l := Layout{
		Style:    s.Name,
		TileRoot: s.TileRoot,
		Marker:   filepath.Join(s.TileRoot, MarkerName),
	}

	winner := make(map[int]string)
	lo, hi := MaxZoom+1, -1
	for _, st := range s.Stores {
		l.Dirs = append(l.Dirs, st.Path)
		for z := st.MinZoom; z <= st.MaxZoom; z++ {
			dir := filepath.Join(st.Path, strconv.Itoa(z))
			l.Dirs = append(l.Dirs, dir)
			winner[z] = dir
		}
		lo, hi = min(lo, st.MinZoom), max(hi, st.MaxZoom)
	}
	for z := lo; z <= hi; z++ {
		target, ok := winner[z]
		if !ok {
			continue
		}
		l.Links = append(l.Links, ZoomLink{
			Zoom: z,
			Link: Link{Path: filepath.Join(s.TileRoot, strconv.Itoa(z)), Target: target},
		})
	}

	if s.StyleDir != "" {
		l.StyleDir = s.StyleDir
		l.DataLink = &Link{Path: filepath.Join(s.StyleDir, "data"), Target: s.DataDir}
	}
	return l, nil
}

func validate(s Style) error {
	var errs []error
	if !filepath.IsAbs(s.TileRoot) {
		errs = append(errs, fmt.Errorf("style %q: tile root %q is not absolute", s.Name, s.TileRoot))
	}
	if len(s.Stores) == 0 {
		errs = append(errs, fmt.Errorf("style %q: no tile stores", s.Name))
	}
	for i, st := range s.Stores {
		switch {
		case !filepath.IsAbs(st.Path):
			errs = append(errs, fmt.Errorf("style %q: store %d: path %q is not absolute", s.Name, i, st.Path))
		case st.MinZoom < 0 || st.MaxZoom > MaxZoom:
			errs = append(errs, fmt.Errorf("style %q: store %s: zoom range %d-%d outside 0-%d", s.Name, st.Path, st.MinZoom, st.MaxZoom, MaxZoom))
		case st.MinZoom > st.MaxZoom:
			errs = append(errs, fmt.Errorf("style %q: store %s: min zoom %d above max zoom %d", s.Name, st.Path, st.MinZoom, st.MaxZoom))
		}
	}
	if s.StyleDir != "" && s.DataDir == "" {
		errs = append(errs, fmt.Errorf("style %q: style directory without data directory", s.Name))
	}
	return errors.Join(errs...)
}

// Resolve returns the physical directory serving zoom.
func (l Layout) Resolve(zoom int) (string, bool) {
	for _, zl := range l.Links {
		if zl.Zoom == zoom {
			return zl.Target, true
		}
	}
	return "", false
}

// Resources returns the layout as resources in declaration order: tile
// root, store directories, zoom links, marker, then the style data link.
func (l Layout) Resources() []*resource.Resource {
	out := []*resource.Resource{dir(l.TileRoot)}
	for _, d := range l.Dirs {
		out = append(out, dir(d))
	}
	for _, zl := range l.Links {
		out = append(out, link(zl.Link))
	}
	out = append(out, &resource.Resource{
		ID:     resource.ID{Kind: resource.KindFile, Name: l.Marker},
		Action: resource.ActionCreateIfMissing,
		State:  resource.FileState{Path: l.Marker, Mode: 0o444},
	})
	if l.DataLink != nil {
		out = append(out, dir(l.StyleDir), link(*l.DataLink))
	}
	return out
}

func dir(path string) *resource.Resource {
	return &resource.Resource{
		ID:     resource.ID{Kind: resource.KindDirectory, Name: path},
		Action: resource.ActionCreate,
		State:  resource.DirectoryState{Path: path, Mode: 0o755},
	}
}

func link(l Link) *resource.Resource {
	return &resource.Resource{
		ID:     resource.ID{Kind: resource.KindLink, Name: l.Path},
		Action: resource.ActionCreate,
		State:  resource.LinkState{Path: l.Path, Target: l.Target},
	}
}
