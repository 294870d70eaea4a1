package fleet

import (
	"fmt"
	"reflect"

	"github.com/roach88/tileconverge/internal/archive"
	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/fetch"
	"github.com/roach88/tileconverge/internal/fsys"
	"github.com/roach88/tileconverge/internal/ingest"
	"github.com/roach88/tileconverge/internal/invalidate"
	"github.com/roach88/tileconverge/internal/pyramid"
	"github.com/roach88/tileconverge/internal/resource"
	"github.com/roach88/tileconverge/internal/service"
	"github.com/roach88/tileconverge/internal/shapeindex"
)

// Plan is the resolved resource set of one configuration.
type Plan struct {
	Config    *config.Config
	Resources []*resource.Resource
	Pipeline  *ingest.Pipeline
	Layouts   []pyramid.Layout
	Trigger   *invalidate.Trigger
}

// RenderServiceID returns the identity of the render service resource.
func (p *Plan) RenderServiceID() resource.ID {
	return resource.ID{Kind: resource.KindService, Name: p.Config.RenderService}
}

// Build resolves cfg into a plan. cfg must have defaults applied and be
// valid; Build still reports structural problems such as two styles
// declaring the same directory with different modes.
func Build(cfg *config.Config) (*Plan, error) {
	p := &Plan{Config: cfg}
	b := &builder{seen: make(map[resource.ID]*resource.Resource)}

	sources := make([]ingest.Source, 0, len(cfg.Data))
	for _, d := range cfg.Data {
		sources = append(sources, ingest.Source{
			Name:      d.Name,
			URL:       d.URL,
			Directory: d.Directory,
			Policy:    d.Policy(),
		})
	}
	p.Pipeline = ingest.New(cfg.DataDir(), p.RenderServiceID(), sources)
	chain := p.Pipeline.Resources()

	b.add(chain[0])
	b.add(&resource.Resource{
		ID:     p.RenderServiceID(),
		Action: resource.ActionNothing,
		State:  resource.ServiceState{Unit: cfg.RenderService},
	})
	b.add(chain[1:]...)

	if len(cfg.Styles) > 0 {
		b.add(directory(cfg.TilesDir()))
	}
	for _, s := range cfg.Styles {
		if s.LinkData {
			b.add(directory(cfg.StylesDir()))
			break
		}
	}
	for _, s := range cfg.Styles {
		style := pyramid.Style{Name: s.Name, TileRoot: cfg.TileRoot(s.Name)}
		for _, td := range s.TileDirectories {
			style.Stores = append(style.Stores, pyramid.Store{Path: td.Name, MinZoom: td.MinZoom, MaxZoom: td.MaxZoom})
		}
		if s.LinkData {
			style.StyleDir = cfg.StyleDir(s.Name)
			style.DataDir = cfg.DataDir()
		}
		layout, err := pyramid.Plan(style)
		if err != nil {
			return nil, err
		}
		p.Layouts = append(p.Layouts, layout)
		b.add(layout.Resources()...)
	}

	if !cfg.Invalidation.Disabled {
		p.Trigger = &invalidate.Trigger{Queue: cfg.Invalidation.Queue, Service: cfg.Invalidation.Service}
		b.add(p.Trigger.Resources()...)
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	p.Resources = b.out
	return p, nil
}

func directory(path string) *resource.Resource {
	return &resource.Resource{
		ID:     resource.ID{Kind: resource.KindDirectory, Name: path},
		Action: resource.ActionCreate,
		State:  resource.DirectoryState{Path: path, Mode: 0o755},
	}
}

// builder appends resources in order. Re-declaring an identical resource
// (two styles sharing a store) keeps the first declaration; a conflicting
// re-declaration is an error.
type builder struct {
	out       []*resource.Resource
	seen      map[resource.ID]*resource.Resource
	conflicts []error
}

func (b *builder) add(rs ...*resource.Resource) {
	for _, r := range rs {
		if prev, ok := b.seen[r.ID]; ok {
			if !reflect.DeepEqual(prev, r) {
				b.conflicts = append(b.conflicts, fmt.Errorf("%s declared twice with different state", r.ID))
			}
			continue
		}
		b.seen[r.ID] = r
		b.out = append(b.out, r)
	}
}

func (b *builder) err() error {
	if len(b.conflicts) == 0 {
		return nil
	}
	return b.conflicts[0]
}

// Capabilities are the external collaborators a pass drives.
type Capabilities struct {
	FS         fsys.FS
	Fetcher    fetch.Fetcher
	Extractors archive.Registry
	Indexer    shapeindex.Indexer
	Services   service.Controller
	Ledger     invalidate.Ledger
}

// Table returns the action table for every kind a plan can contain.
func Table(caps Capabilities) engine.ActionTable {
	return fsys.Handlers(caps.FS).
		Merge(ingest.Handlers(caps.Fetcher, caps.FS, caps.Extractors, caps.Indexer)).
		Merge(invalidate.Handlers(caps.FS, caps.Ledger)).
		Merge(engine.ActionTable{resource.KindService: service.Handler{Controller: caps.Services}})
}

// Graph validates the plan against caps and resolves its edges.
func (p *Plan) Graph(caps Capabilities) (*engine.Graph, error) {
	return engine.NewGraph(p.Resources, Table(caps))
}
