package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/resource"
)

func appliedIDs(host *fakeHost) []string {
	var out []string
	for _, c := range host.applies() {
		out = append(out, c.ID.String()+":"+string(c.Action))
	}
	return out
}

func TestExecutor_DeclarationOrder(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		dir("a", resource.ActionCreate),
		dir("b", resource.ActionCreate),
		svc("renderd", resource.ActionStart),
	}, WithPassIDGenerator(NewFixedGenerator("pass-1")))

	report := runPass(t, e)

	assert.Equal(t, "pass-1", report.PassID)
	assert.Equal(t, []string{
		"directory[a]:create",
		"directory[b]:create",
		"service[renderd]:start",
	}, appliedIDs(host))

	require.Len(t, report.Records, 3)
	for i, rec := range report.Records {
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.True(t, rec.Changed)
		assert.False(t, rec.Triggered)
	}
	assert.Equal(t, 3, report.ChangedCount())
}

func TestExecutor_ConvergedResourceIsNotApplied(t *testing.T) {
	host := newFakeHost()
	host.converged[dirID("a")] = true
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		svc("renderd", resource.ActionNothing),
	})

	report := runPass(t, e)

	assert.Empty(t, host.applies())
	require.Len(t, report.Records, 1)
	assert.False(t, report.Records[0].Changed)
	assert.Equal(t, []resource.ID{svcID("renderd")}, report.Skipped)
}

func TestExecutor_SecondPassChangesNothing(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate),
		dir("extract", resource.ActionNothing),
		notify(dir("tiles", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		svc("renderd", resource.ActionNothing),
	}, WithPassIDGenerator(NewFixedGenerator("p1", "p2")))

	first := runPass(t, e)
	assert.Equal(t, 4, first.ChangedCount())

	second := runPass(t, e)
	assert.Equal(t, "p2", second.PassID)
	assert.Zero(t, second.ChangedCount())
	assert.Empty(t, second.Changed())
	assert.ElementsMatch(t, []resource.ID{dirID("extract"), svcID("renderd")}, second.Skipped)
}

func TestExecutor_NotifiedActionIsUnconditional(t *testing.T) {
	host := newFakeHost()
	// The target looks converged; a notified action must run anyway.
	host.converged[svcID("renderd")] = true
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("style", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Immediate),
		svc("renderd", resource.ActionNothing),
	})

	report := runPass(t, e)

	assert.Equal(t, []string{
		"directory[style]:create",
		"service[renderd]:restart",
	}, appliedIDs(host))
	for _, c := range host.calls {
		if c.ID == svcID("renderd") {
			assert.NotEqual(t, "probe", c.Op, "triggered evaluation must not probe")
		}
	}

	recs := report.RecordsFor(svcID("renderd"))
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Triggered)
	assert.Equal(t, dirID("style"), recs[0].Source)
	assert.Equal(t, resource.ActionRestart, recs[0].Action)
	assert.Empty(t, report.Skipped)
}

func TestExecutor_ImmediateBeforeNextDeclared(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate),
		notify(dir("extract", resource.ActionNothing), dirID("index"), resource.ActionRun, resource.Immediate),
		dir("index", resource.ActionNothing),
		dir("next", resource.ActionCreate),
	})

	report := runPass(t, e)

	assert.Equal(t, []string{
		"directory[fetch]:create",
		"directory[extract]:run",
		"directory[index]:run",
		"directory[next]:create",
	}, appliedIDs(host))
	assert.Equal(t, dirID("extract"), report.RecordsFor(dirID("index"))[0].Source)
}

func TestExecutor_DelayedAfterAllDeclared(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		notify(dir("b", resource.ActionCreate), svcID("cache"), resource.ActionRestart, resource.Delayed),
		notify(dir("c", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		svc("renderd", resource.ActionNothing),
		svc("cache", resource.ActionNothing),
		dir("d", resource.ActionCreate),
	})

	report := runPass(t, e)

	assert.Equal(t, []string{
		"directory[a]:create",
		"directory[b]:create",
		"directory[c]:create",
		"directory[d]:create",
		"service[cache]:restart",
		"service[renderd]:restart",
	}, appliedIDs(host))

	recs := report.RecordsFor(svcID("renderd"))
	require.Len(t, recs, 1, "renderd restart collapses to one execution")
	assert.Equal(t, dirID("c"), recs[0].Source, "last enqueue wins")
	assert.Equal(t, 1, report.Rounds)
}

func TestExecutor_UnchangedSourceDoesNotNotify(t *testing.T) {
	host := newFakeHost()
	host.noChange[dirID("fetch")] = true
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate),
		dir("extract", resource.ActionNothing),
	})

	report := runPass(t, e)

	assert.Equal(t, 1, host.applied(dirID("fetch")))
	assert.Zero(t, host.applied(dirID("extract")))
	assert.False(t, report.Evaluated(dirID("extract")))
	assert.Equal(t, []resource.ID{dirID("extract")}, report.Skipped)
}

func TestExecutor_ProbeErrorAbortsPass(t *testing.T) {
	host := newFakeHost()
	probeErr := errors.New("permission denied")
	host.probeErr[dirID("b")] = probeErr
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		dir("b", resource.ActionCreate),
		dir("c", resource.ActionCreate),
		svc("renderd", resource.ActionNothing),
	})

	report, err := e.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	assert.True(t, IsConvergenceError(err))
	assert.ErrorIs(t, err, probeErr)
	id, ok := FailedResource(err)
	require.True(t, ok)
	assert.Equal(t, dirID("b"), id)

	// Partial convergence: a keeps its state, c never runs, delayed edges are dropped.
	assert.Equal(t, []string{"directory[a]:create"}, appliedIDs(host))
	require.Len(t, report.Records, 2)
	assert.True(t, report.Records[1].Failed())
	assert.False(t, report.Evaluated(dirID("c")))
}

func TestExecutor_ApplyErrorIsFatal(t *testing.T) {
	host := newFakeHost()
	corrupt := errors.New("unexpected EOF")
	host.applyErr[dirID("extract")] = corrupt
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate),
		dir("extract", resource.ActionNothing),
		dir("next", resource.ActionCreate),
	})

	_, err := e.Run(context.Background())

	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, dirID("extract"), ae.Resource)
	assert.Equal(t, resource.ActionRun, ae.Action)
	assert.ErrorIs(t, err, corrupt)
	assert.Zero(t, host.applied(dirID("next")))
}

func TestExecutor_IgnoreFailureBecomesWarning(t *testing.T) {
	host := newFakeHost()
	fetchErr := errors.New("503 Service Unavailable")
	host.applyErr[dirID("fetch")] = fetchErr

	fetch := notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate)
	fetch = notify(fetch, svcID("renderd"), resource.ActionRestart, resource.Delayed)
	fetch.IgnoreFailure = true

	e := newTestExecutor(t, host, []*resource.Resource{
		fetch,
		dir("extract", resource.ActionNothing),
		dir("next", resource.ActionCreate),
		svc("renderd", resource.ActionNothing),
	})

	report := runPass(t, e)

	require.Len(t, report.Warnings, 1)
	assert.ErrorIs(t, report.Warnings[0], fetchErr)
	id, ok := FailedResource(report.Warnings[0])
	require.True(t, ok)
	assert.Equal(t, dirID("fetch"), id)

	assert.Zero(t, host.applied(dirID("extract")))
	assert.Zero(t, host.applied(svcID("renderd")))
	assert.Equal(t, 1, host.applied(dirID("next")))

	recs := report.RecordsFor(dirID("fetch"))
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Changed)
	assert.True(t, recs[0].Failed())
}

func TestExecutor_ImmediateCycle(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), dirID("b"), resource.ActionRun, resource.Immediate),
		notify(dir("b", resource.ActionNothing), dirID("a"), resource.ActionRun, resource.Immediate),
	}, WithMaxIterations(3))

	report, err := e.Run(context.Background())

	var nce *NotificationCycleError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, 3, nce.Limit)
	assert.Equal(t, []resource.ID{dirID("a"), dirID("b"), dirID("a"), dirID("b")}, nce.Path)
	assert.Len(t, report.Records, 4)
}

func TestExecutor_DelayedCycle(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), svcID("x"), resource.ActionRestart, resource.Delayed),
		notify(svc("x", resource.ActionNothing), svcID("y"), resource.ActionRestart, resource.Delayed),
		notify(svc("y", resource.ActionNothing), svcID("x"), resource.ActionRestart, resource.Delayed),
	}, WithMaxIterations(4))

	report, err := e.Run(context.Background())

	assert.True(t, IsNotificationCycleError(err))
	var nce *NotificationCycleError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, 4, nce.Iterations)
	require.Len(t, nce.Pending, 1)
	// One declared evaluation plus four delayed rounds.
	assert.Len(t, report.Records, 5)
}

func TestExecutor_DelayedChainSettles(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{
		notify(dir("a", resource.ActionCreate), svcID("x"), resource.ActionRestart, resource.Delayed),
		notify(svc("x", resource.ActionNothing), svcID("y"), resource.ActionRestart, resource.Delayed),
		svc("y", resource.ActionNothing),
	})

	report := runPass(t, e)
	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, []string{
		"directory[a]:create",
		"service[x]:restart",
		"service[y]:restart",
	}, appliedIDs(host))
}

func TestExecutor_CancelledBeforeStart(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{dir("a", resource.ActionCreate)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, host.calls)
}

// cancellingHandler cancels the pass context from inside Apply.
type cancellingHandler struct {
	fakeHandler
	cancel context.CancelFunc
	sawErr []error
}

func (c *cancellingHandler) Apply(ctx context.Context, r *resource.Resource, action resource.Action) (bool, error) {
	c.cancel()
	c.sawErr = append(c.sawErr, ctx.Err())
	return c.fakeHandler.Apply(ctx, r, action)
}

func TestExecutor_NoCancellationMidPass(t *testing.T) {
	host := newFakeHost()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &cancellingHandler{fakeHandler: fakeHandler{host: host, actions: allActions}, cancel: cancel}
	g, err := NewGraph([]*resource.Resource{
		dir("a", resource.ActionCreate),
		dir("b", resource.ActionCreate),
	}, ActionTable{resource.KindDirectory: h})
	require.NoError(t, err)

	report, err := NewExecutor(g, WithLogger(quietLogger())).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Records, 2)
	assert.Equal(t, []error{nil, nil}, h.sawErr)
}

func TestExecutor_RunWithID(t *testing.T) {
	host := newFakeHost()
	e := newTestExecutor(t, host, []*resource.Resource{dir("a", resource.ActionCreate)},
		WithPassIDGenerator(NewFixedGenerator()))

	report, err := e.RunWithID(context.Background(), "chosen-id")
	require.NoError(t, err)
	assert.Equal(t, "chosen-id", report.PassID)
}
