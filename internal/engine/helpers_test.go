package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/resource"
)

// hostCall is one handler invocation observed by fakeHost.
type hostCall struct {
	Op     string // "probe" or "apply"
	ID     resource.ID
	Action resource.Action
}

func (c hostCall) String() string {
	return fmt.Sprintf("%s %s:%s", c.Op, c.ID, c.Action)
}

// fakeHost is an in-memory host: a resource is converged once applied.
type fakeHost struct {
	converged map[resource.ID]bool
	probeErr  map[resource.ID]error
	applyErr  map[resource.ID]error
	noChange  map[resource.ID]bool // Apply reports unchanged
	sticky    map[resource.ID]bool // Apply never converges (always reports changed)
	calls     []hostCall
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		converged: make(map[resource.ID]bool),
		probeErr:  make(map[resource.ID]error),
		applyErr:  make(map[resource.ID]error),
		noChange:  make(map[resource.ID]bool),
		sticky:    make(map[resource.ID]bool),
	}
}

func (h *fakeHost) applies() []hostCall {
	var out []hostCall
	for _, c := range h.calls {
		if c.Op == "apply" {
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHost) applied(id resource.ID) int {
	n := 0
	for _, c := range h.applies() {
		if c.ID == id {
			n++
		}
	}
	return n
}

type fakeHandler struct {
	host    *fakeHost
	actions []resource.Action
}

func (f fakeHandler) Actions() []resource.Action { return f.actions }

func (f fakeHandler) Probe(_ context.Context, r *resource.Resource, action resource.Action) (bool, error) {
	f.host.calls = append(f.host.calls, hostCall{Op: "probe", ID: r.ID, Action: action})
	if err := f.host.probeErr[r.ID]; err != nil {
		return false, err
	}
	return f.host.converged[r.ID], nil
}

func (f fakeHandler) Apply(_ context.Context, r *resource.Resource, action resource.Action) (bool, error) {
	f.host.calls = append(f.host.calls, hostCall{Op: "apply", ID: r.ID, Action: action})
	if err := f.host.applyErr[r.ID]; err != nil {
		return false, err
	}
	if f.host.noChange[r.ID] {
		return false, nil
	}
	if !f.host.sticky[r.ID] {
		f.host.converged[r.ID] = true
	}
	return true, nil
}

var allActions = []resource.Action{
	resource.ActionCreate,
	resource.ActionCreateIfMissing,
	resource.ActionDelete,
	resource.ActionRun,
	resource.ActionWatch,
	resource.ActionStart,
	resource.ActionStop,
	resource.ActionRestart,
	resource.ActionReload,
}

// fakeTable registers fakeHandler for directories and services.
func fakeTable(host *fakeHost) ActionTable {
	h := fakeHandler{host: host, actions: allActions}
	return ActionTable{
		resource.KindDirectory: h,
		resource.KindService:   h,
	}
}

func dirID(name string) resource.ID {
	return resource.ID{Kind: resource.KindDirectory, Name: name}
}

func svcID(name string) resource.ID {
	return resource.ID{Kind: resource.KindService, Name: name}
}

// dir declares a directory resource running action.
func dir(name string, action resource.Action) *resource.Resource {
	return &resource.Resource{
		ID:     dirID(name),
		Action: action,
		State:  resource.DirectoryState{Path: "/" + name},
	}
}

// svc declares a service resource running action.
func svc(name string, action resource.Action) *resource.Resource {
	return &resource.Resource{
		ID:     svcID(name),
		Action: action,
		State:  resource.ServiceState{Unit: name},
	}
}

func notify(r *resource.Resource, target resource.ID, action resource.Action, timing resource.Timing) *resource.Resource {
	r.Notifies = append(r.Notifies, resource.Notification{Target: target, Action: action, Timing: timing})
	return r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestExecutor builds a graph over host and returns an executor with a
// discarded logger.
func newTestExecutor(t *testing.T, host *fakeHost, resources []*resource.Resource, opts ...ExecutorOption) *Executor {
	t.Helper()
	g, err := NewGraph(resources, fakeTable(host))
	require.NoError(t, err)
	opts = append([]ExecutorOption{WithLogger(quietLogger())}, opts...)
	return NewExecutor(g, opts...)
}

// runPass runs one pass and requires it to succeed.
func runPass(t *testing.T, e *Executor) *Report {
	t.Helper()
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}
