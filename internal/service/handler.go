package service

import (
	"context"
	"fmt"

	"github.com/roach88/tileconverge/internal/resource"
)

// Handler converges resource.ServiceState through a Controller.
//
// start and stop are probed against the unit's active state. restart and
// reload have no observable desired state; they run whenever evaluated, which
// in practice means whenever notified.
type Handler struct {
	Controller Controller
}

func (Handler) Actions() []resource.Action {
	return []resource.Action{
		resource.ActionStart,
		resource.ActionStop,
		resource.ActionRestart,
		resource.ActionReload,
	}
}

func (h Handler) Probe(ctx context.Context, r *resource.Resource, action resource.Action) (bool, error) {
	st, err := serviceState(r)
	if err != nil {
		return false, err
	}
	switch action {
	case resource.ActionStart:
		return h.Controller.Active(ctx, st.Unit)
	case resource.ActionStop:
		active, err := h.Controller.Active(ctx, st.Unit)
		return !active, err
	default:
		return false, nil
	}
}

func (h Handler) Apply(ctx context.Context, r *resource.Resource, action resource.Action) (bool, error) {
	st, err := serviceState(r)
	if err != nil {
		return false, err
	}
	switch action {
	case resource.ActionStart:
		err = h.Controller.Start(ctx, st.Unit)
	case resource.ActionStop:
		err = h.Controller.Stop(ctx, st.Unit)
	case resource.ActionRestart:
		err = h.Controller.Restart(ctx, st.Unit)
	case resource.ActionReload:
		err = h.Controller.Reload(ctx, st.Unit)
	default:
		return false, fmt.Errorf("%s: unsupported action %q", r.ID, action)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func serviceState(r *resource.Resource) (resource.ServiceState, error) {
	st, ok := r.State.(resource.ServiceState)
	if !ok {
		return st, fmt.Errorf("%s: unexpected descriptor %T", r.ID, r.State)
	}
	return st, nil
}
