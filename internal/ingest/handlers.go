package ingest

import (
	"context"
	"fmt"

	"github.com/roach88/tileconverge/internal/archive"
	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/fetch"
	"github.com/roach88/tileconverge/internal/resource"
	"github.com/roach88/tileconverge/internal/shapeindex"
)

// Exister is the filesystem probe the remote file handler needs.
type Exister interface {
	Exists(path string) (bool, error)
}

// Handlers returns the action table entries for the ingestion kinds.
func Handlers(f fetch.Fetcher, fs Exister, extractors archive.Registry, ix shapeindex.Indexer) engine.ActionTable {
	return engine.ActionTable{
		resource.KindRemoteFile: RemoteFileHandler{Fetcher: f, FS: fs},
		resource.KindExtract:    ExtractHandler{Extractors: extractors},
		resource.KindShapeIndex: IndexHandler{Indexer: ix},
	}
}

// RemoteFileHandler converges resource.RemoteFileState.
//
// Under create-if-missing the file is in sync once it exists. Under
// revalidate the handler never trusts the local copy and always asks the
// fetcher, which decides through a conditional request.
type RemoteFileHandler struct {
	Fetcher fetch.Fetcher
	FS      Exister
}

func (RemoteFileHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionCreate}
}

func (h RemoteFileHandler) Probe(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.RemoteFileState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	if st.Policy == resource.CreateIfMissing {
		return h.FS.Exists(st.Path)
	}
	return false, nil
}

func (h RemoteFileHandler) Apply(ctx context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.RemoteFileState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	res, err := h.Fetcher.Fetch(ctx, st.URL, st.Path, st.Policy)
	if err != nil {
		if !fetch.IsFetchFailure(err) {
			err = &fetch.FetchFailure{URL: st.URL, Err: err}
		}
		return false, err
	}
	return res == fetch.Changed, nil
}

// ExtractHandler converges resource.ExtractState by dispatching on the
// archive format. Extraction always counts as a change.
type ExtractHandler struct {
	Extractors archive.Registry
}

func (ExtractHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionRun}
}

// Probe never reports in sync: an extraction that is evaluated runs.
func (ExtractHandler) Probe(context.Context, *resource.Resource, resource.Action) (bool, error) {
	return false, nil
}

func (h ExtractHandler) Apply(ctx context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.ExtractState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	x, err := h.Extractors.Lookup(st.Format)
	if err != nil {
		return false, &archive.ExtractionError{Archive: st.Archive, Dir: st.Dir, Err: err}
	}
	if err := x.Extract(ctx, st.Archive, st.Dir); err != nil {
		if !archive.IsExtractionError(err) {
			err = &archive.ExtractionError{Archive: st.Archive, Dir: st.Dir, Err: err}
		}
		return false, err
	}
	return true, nil
}

// IndexHandler converges resource.IndexState.
type IndexHandler struct {
	Indexer shapeindex.Indexer
}

func (IndexHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionRun}
}

func (IndexHandler) Probe(context.Context, *resource.Resource, resource.Action) (bool, error) {
	return false, nil
}

func (h IndexHandler) Apply(ctx context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.IndexState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	if err := h.Indexer.Index(ctx, st.Dir); err != nil {
		if !shapeindex.IsIndexingError(err) {
			err = &shapeindex.IndexingError{Dir: st.Dir, Err: err}
		}
		return false, err
	}
	return true, nil
}
