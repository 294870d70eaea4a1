package fsys

import (
	"context"
	"fmt"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/resource"
)

// Handlers returns the action table entries for the filesystem kinds.
func Handlers(fs FS) engine.ActionTable {
	return engine.ActionTable{
		resource.KindDirectory: DirectoryHandler{FS: fs},
		resource.KindLink:      LinkHandler{FS: fs},
		resource.KindFile:      FileHandler{FS: fs},
	}
}

// DirectoryHandler converges resource.DirectoryState.
type DirectoryHandler struct {
	FS FS
}

func (DirectoryHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionCreate}
}

func (h DirectoryHandler) Probe(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, err := directoryState(r)
	if err != nil {
		return false, err
	}
	return h.FS.IsDir(st.Path)
}

func (h DirectoryHandler) Apply(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, err := directoryState(r)
	if err != nil {
		return false, err
	}
	return h.FS.EnsureDir(st.Path, st.Mode)
}

func directoryState(r *resource.Resource) (resource.DirectoryState, error) {
	st, ok := r.State.(resource.DirectoryState)
	if !ok {
		return st, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return st, nil
}

// LinkHandler converges resource.LinkState. A link pointing elsewhere is
// retargeted.
type LinkHandler struct {
	FS FS
}

func (LinkHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionCreate}
}

func (h LinkHandler) Probe(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.LinkState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	target, isLink, err := h.FS.LinkTarget(st.Path)
	if err != nil {
		return false, err
	}
	return isLink && target == st.Target, nil
}

func (h LinkHandler) Apply(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.LinkState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return h.FS.EnsureSymlink(st.Path, st.Target)
}

// FileHandler converges resource.FileState with create_if_missing: only the
// file's existence is managed, never its content.
type FileHandler struct {
	FS FS
}

func (FileHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionCreateIfMissing}
}

func (h FileHandler) Probe(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.FileState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return h.FS.Exists(st.Path)
}

func (h FileHandler) Apply(_ context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, ok := r.State.(resource.FileState)
	if !ok {
		return false, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return h.FS.CreateIfMissing(st.Path, st.Mode)
}
