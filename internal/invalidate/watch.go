package invalidate

import (
	"context"
	"fmt"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/resource"
)

// Emptiness is the filesystem probe the watcher needs. fsys.FS satisfies it.
type Emptiness interface {
	IsEmpty(path string) (bool, error)
}

// WatchHandler converges resource.WatchState.
//
// Probe reports in sync unless the directory is non-empty and was not
// non-empty at the previous observation. Observing an empty directory is
// recorded during Probe so the next filling counts as a transition.
// Apply records the non-empty observation; Trigger.Settle takes it back when
// the consumer then fails to start.
type WatchHandler struct {
	FS     Emptiness
	Ledger Ledger
}

// Handlers returns the action table entry for the dir_watch kind.
func Handlers(fs Emptiness, ledger Ledger) engine.ActionTable {
	return engine.ActionTable{
		resource.KindDirWatch: WatchHandler{FS: fs, Ledger: ledger},
	}
}

func (WatchHandler) Actions() []resource.Action {
	return []resource.Action{resource.ActionWatch}
}

func (h WatchHandler) Probe(ctx context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, err := watchState(r)
	if err != nil {
		return false, err
	}
	empty, err := h.FS.IsEmpty(st.Dir)
	if err != nil {
		return false, err
	}
	prev, known, err := h.Ledger.LastObservation(ctx, st.Dir)
	if err != nil {
		return false, fmt.Errorf("load observation: %w", err)
	}

	if empty {
		if !known || prev {
			if err := h.Ledger.RecordObservation(ctx, st.Dir, false); err != nil {
				return false, fmt.Errorf("record observation: %w", err)
			}
		}
		return true, nil
	}
	return known && prev, nil
}

// Apply re-observes the directory and records the transition. It reports a
// change only when the directory is still non-empty.
func (h WatchHandler) Apply(ctx context.Context, r *resource.Resource, _ resource.Action) (bool, error) {
	st, err := watchState(r)
	if err != nil {
		return false, err
	}
	empty, err := h.FS.IsEmpty(st.Dir)
	if err != nil {
		return false, err
	}
	if err := h.Ledger.RecordObservation(ctx, st.Dir, !empty); err != nil {
		return false, fmt.Errorf("record observation: %w", err)
	}
	return !empty, nil
}

func watchState(r *resource.Resource) (resource.WatchState, error) {
	st, ok := r.State.(resource.WatchState)
	if !ok {
		return st, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return st, nil
}
