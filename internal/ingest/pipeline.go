package ingest

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/resource"
)

// Source is one configured data source.
type Source struct {
	Name string
	URL  string
	// Directory is the extraction directory relative to the data root.
	// Empty means the archive's stem.
	Directory string
	Policy    resource.RefreshPolicy
}

// Pipeline holds the resolved ingestion chain of every source.
type Pipeline struct {
	dataDir string
	restart resource.ID
	sources []resource.ArchiveDescriptor
	dirs    []bool // explicit extraction directory, by source
}

// New resolves sources against dataDir. restart names the service every
// fetched source restarts; a zero ID restarts nothing.
func New(dataDir string, restart resource.ID, sources []Source) *Pipeline {
	p := &Pipeline{dataDir: dataDir, restart: restart}
	for _, s := range sources {
		p.sources = append(p.sources, Resolve(dataDir, s))
		p.dirs = append(p.dirs, s.Directory != "")
	}
	return p
}

// Resolve derives the local layout of one source. The archive is
// downloaded to <dataDir>/<basename of URL>.
func Resolve(dataDir string, s Source) resource.ArchiveDescriptor {
	dir := s.Directory
	if dir == "" {
		dir = resource.Stem(s.URL)
	}
	policy := s.Policy
	if policy == "" {
		policy = resource.Revalidate
	}
	return resource.ArchiveDescriptor{
		Name:      s.Name,
		URL:       s.URL,
		Archive:   filepath.Join(dataDir, path.Base(trimQuery(s.URL))),
		TargetDir: filepath.Join(dataDir, dir),
		Format:    resource.DetectFormat(s.URL),
		Policy:    policy,
	}
}

func trimQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// Descriptors returns the resolved sources in declaration order.
func (p *Pipeline) Descriptors() []resource.ArchiveDescriptor {
	return p.sources
}

// FetchID returns the identity of a source's remote file resource.
func FetchID(d resource.ArchiveDescriptor) resource.ID {
	return resource.ID{Kind: resource.KindRemoteFile, Name: d.Archive}
}

// ExtractID returns the identity of a source's extraction resource.
func ExtractID(d resource.ArchiveDescriptor) resource.ID {
	return resource.ID{Kind: resource.KindExtract, Name: d.TargetDir}
}

// IndexID returns the identity of a source's indexing resource.
func IndexID(d resource.ArchiveDescriptor) resource.ID {
	return resource.ID{Kind: resource.KindShapeIndex, Name: d.TargetDir}
}

// Resources returns the pipeline's resources in declaration order: the
// data root, then per source its notify-only steps followed by the remote
// file that drives them.
func (p *Pipeline) Resources() []*resource.Resource {
	out := []*resource.Resource{{
		ID:     resource.ID{Kind: resource.KindDirectory, Name: p.dataDir},
		Action: resource.ActionCreate,
		State:  resource.DirectoryState{Path: p.dataDir, Mode: 0o755},
	}}

	for i, d := range p.sources {
		if p.dirs[i] {
			out = append(out, &resource.Resource{
				ID:     resource.ID{Kind: resource.KindDirectory, Name: d.TargetDir},
				Action: resource.ActionCreate,
				State:  resource.DirectoryState{Path: d.TargetDir, Mode: 0o755},
			})
		}

		remote := &resource.Resource{
			ID:     FetchID(d),
			Action: resource.ActionCreate,
			State: resource.RemoteFileState{
				URL:    d.URL,
				Path:   d.Archive,
				Policy: d.Policy,
				Mode:   0o644,
			},
			IgnoreFailure: true,
		}

		if d.Format != resource.FormatUnknown {
			out = append(out,
				&resource.Resource{
					ID:     ExtractID(d),
					Action: resource.ActionNothing,
					State:  resource.ExtractState{Archive: d.Archive, Dir: d.TargetDir, Format: d.Format},
				},
				&resource.Resource{
					ID:     IndexID(d),
					Action: resource.ActionNothing,
					State:  resource.IndexState{Dir: d.TargetDir},
					Subscribes: []resource.Subscription{
						{Source: ExtractID(d), Action: resource.ActionRun, Timing: resource.Immediate},
					},
				},
			)
			remote.Notifies = append(remote.Notifies, resource.Notification{
				Target: ExtractID(d), Action: resource.ActionRun, Timing: resource.Immediate,
			})
		}
		if !p.restart.IsZero() {
			remote.Notifies = append(remote.Notifies, resource.Notification{
				Target: p.restart, Action: resource.ActionRestart, Timing: resource.Delayed,
			})
		}
		out = append(out, remote)
	}
	return out
}

// Stage is where a source's pipeline stood at the end of a pass.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageIndexing   Stage = "indexing"
	StageSettled    Stage = "settled"
	StageSkipped    Stage = "skipped"
)

// SourceStatus summarises one source after a pass.
type SourceStatus struct {
	Name    string
	Archive string
	Stage   Stage
	// Fetched is set when new content was downloaded this pass.
	Fetched bool
	// Halted is set when the pipeline stopped short of a terminal stage.
	Halted bool
	Err     error
}

// Status derives each source's final stage from a pass report.
//
// A source whose fetch failed halts in Fetching with the failure attached.
// A source the pass never reached (aborted earlier) halts in the first
// stage without a record.
func (p *Pipeline) Status(report *engine.Report) []SourceStatus {
	out := make([]SourceStatus, 0, len(p.sources))
	for _, d := range p.sources {
		out = append(out, status(report, d))
	}
	return out
}

func status(report *engine.Report, d resource.ArchiveDescriptor) SourceStatus {
	st := SourceStatus{Name: d.Name, Archive: d.Archive}

	fetched, ok := last(report, FetchID(d))
	if !ok || fetched.Err != nil {
		st.Stage, st.Halted = StageFetching, true
		if ok {
			st.Err = fetched.Err
		}
		return st
	}
	st.Fetched = fetched.Changed
	if !fetched.Changed {
		if d.Policy == resource.CreateIfMissing {
			st.Stage = StageSkipped
		} else {
			st.Stage = StageSettled
		}
		return st
	}
	if d.Format == resource.FormatUnknown {
		st.Stage = StageSettled
		return st
	}

	steps := []struct {
		id    resource.ID
		stage Stage
	}{
		{ExtractID(d), StageExtracting},
		{IndexID(d), StageIndexing},
	}
	for _, step := range steps {
		rec, ok := last(report, step.id)
		if !ok || rec.Err != nil {
			st.Stage, st.Halted = step.stage, true
			if ok {
				st.Err = rec.Err
			}
			return st
		}
	}
	st.Stage = StageSettled
	return st
}

func last(report *engine.Report, id resource.ID) (resource.ChangeRecord, bool) {
	recs := report.RecordsFor(id)
	if len(recs) == 0 {
		return resource.ChangeRecord{}, false
	}
	return recs[len(recs)-1], true
}
