package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/resource"
)

// graphErrors flattens a joined NewGraph error into its GraphErrors.
func graphErrors(t *testing.T, err error) []*GraphError {
	t.Helper()
	require.Error(t, err)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "NewGraph should return a joined error")

	var out []*GraphError
	for _, e := range joined.Unwrap() {
		var ge *GraphError
		require.ErrorAs(t, e, &ge)
		out = append(out, ge)
	}
	return out
}

func TestNewGraph_PreservesDeclarationOrder(t *testing.T) {
	host := newFakeHost()
	resources := []*resource.Resource{
		dir("c", resource.ActionCreate),
		dir("a", resource.ActionCreate),
		dir("b", resource.ActionCreate),
	}

	g, err := NewGraph(resources, fakeTable(host))
	require.NoError(t, err)

	// Mutating the input after construction must not reorder the graph.
	resources[0], resources[2] = resources[2], resources[0]

	var names []string
	for _, r := range g.Resources() {
		names = append(names, r.ID.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
	assert.Equal(t, 3, g.Len())
}

func TestNewGraph_ResolvesNotifiesAndSubscribes(t *testing.T) {
	host := newFakeHost()
	fetch := notify(dir("fetch", resource.ActionCreate), dirID("extract"), resource.ActionRun, resource.Immediate)
	extract := dir("extract", resource.ActionNothing)
	index := dir("index", resource.ActionNothing)
	index.Subscribes = []resource.Subscription{
		{Source: dirID("extract"), Action: resource.ActionRun, Timing: resource.Immediate},
	}

	g, err := NewGraph([]*resource.Resource{fetch, extract, index}, fakeTable(host))
	require.NoError(t, err)

	assert.Equal(t, []resource.Edge{
		{Source: dirID("fetch"), Target: dirID("extract"), Action: resource.ActionRun, Timing: resource.Immediate},
	}, g.EdgesFrom(dirID("fetch")))

	// The subscription is stored on its source.
	assert.Equal(t, []resource.Edge{
		{Source: dirID("extract"), Target: dirID("index"), Action: resource.ActionRun, Timing: resource.Immediate},
	}, g.EdgesFrom(dirID("extract")))

	assert.Len(t, g.Edges(), 2)
	assert.Empty(t, g.EdgesFrom(dirID("index")))

	r, ok := g.Lookup(dirID("index"))
	require.True(t, ok)
	assert.Same(t, index, r)
}

func TestNewGraph_Duplicate(t *testing.T) {
	host := newFakeHost()
	_, err := NewGraph([]*resource.Resource{
		dir("a", resource.ActionCreate),
		dir("a", resource.ActionDelete),
	}, fakeTable(host))

	errs := graphErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeDuplicateResource, errs[0].Code)
	assert.Equal(t, dirID("a"), errs[0].Resource)
}

func TestNewGraph_SameNameDifferentKindIsDistinct(t *testing.T) {
	host := newFakeHost()
	_, err := NewGraph([]*resource.Resource{
		dir("renderd", resource.ActionCreate),
		svc("renderd", resource.ActionStart),
	}, fakeTable(host))
	assert.NoError(t, err)
}

func TestNewGraph_KindMismatch(t *testing.T) {
	host := newFakeHost()
	r := dir("a", resource.ActionCreate)
	r.State = resource.ServiceState{Unit: "a"}

	errs := graphErrors(t, func() error {
		_, err := NewGraph([]*resource.Resource{r}, fakeTable(host))
		return err
	}())
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeKindMismatch, errs[0].Code)
}

func TestNewGraph_MissingHandler(t *testing.T) {
	r := &resource.Resource{
		ID:     resource.ID{Kind: resource.KindLink, Name: "z0"},
		Action: resource.ActionCreate,
		State:  resource.LinkState{Path: "/tiles/0", Target: "/store/0"},
	}
	_, err := NewGraph([]*resource.Resource{r}, fakeTable(newFakeHost()))

	errs := graphErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeMissingHandler, errs[0].Code)
	assert.True(t, IsGraphError(err))
}

func TestNewGraph_UnsupportedAction(t *testing.T) {
	host := newFakeHost()
	table := ActionTable{
		resource.KindDirectory: fakeHandler{host: host, actions: []resource.Action{resource.ActionCreate}},
		resource.KindService:   fakeHandler{host: host, actions: []resource.Action{resource.ActionStart}},
	}

	_, err := NewGraph([]*resource.Resource{
		dir("a", resource.ActionDelete),
		notify(dir("b", resource.ActionCreate), svcID("renderd"), resource.ActionRestart, resource.Delayed),
		svc("renderd", resource.ActionNothing),
	}, table)

	errs := graphErrors(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeUnsupportedAction, errs[0].Code)
	assert.Equal(t, dirID("a"), errs[0].Resource)
	assert.Equal(t, ErrCodeUnsupportedAction, errs[1].Code)
	assert.Equal(t, dirID("b"), errs[1].Resource)
	assert.Contains(t, errs[1].Message, "restart")
}

func TestNewGraph_NothingIsAlwaysSupported(t *testing.T) {
	host := newFakeHost()
	table := ActionTable{
		resource.KindService: fakeHandler{host: host, actions: []resource.Action{resource.ActionRestart}},
	}
	_, err := NewGraph([]*resource.Resource{svc("renderd", resource.ActionNothing)}, table)
	assert.NoError(t, err)
}

func TestNewGraph_DanglingReferences(t *testing.T) {
	host := newFakeHost()
	consumer := svc("expire", resource.ActionNothing)
	consumer.Subscribes = []resource.Subscription{
		{Source: dirID("queue"), Action: resource.ActionStart, Timing: resource.Immediate},
	}

	_, err := NewGraph([]*resource.Resource{
		notify(dir("a", resource.ActionCreate), dirID("missing"), resource.ActionRun, resource.Immediate),
		consumer,
	}, fakeTable(host))

	errs := graphErrors(t, err)
	require.Len(t, errs, 2)
	for _, ge := range errs {
		assert.Equal(t, ErrCodeDanglingReference, ge.Code)
	}
	assert.Contains(t, errs[0].Message, "directory[missing]")
	assert.Contains(t, errs[1].Message, "directory[queue]")
}

func TestNewGraph_NotificationMustNameAction(t *testing.T) {
	host := newFakeHost()
	_, err := NewGraph([]*resource.Resource{
		notify(dir("a", resource.ActionCreate), dirID("b"), resource.ActionNothing, resource.Immediate),
		dir("b", resource.ActionNothing),
	}, fakeTable(host))

	errs := graphErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeUnsupportedAction, errs[0].Code)
}

func TestNewGraph_ReportsEveryProblem(t *testing.T) {
	host := newFakeHost()
	mismatched := dir("b", resource.ActionCreate)
	mismatched.State = resource.FileState{Path: "/b"}

	_, err := NewGraph([]*resource.Resource{
		dir("a", resource.ActionCreate),
		dir("a", resource.ActionCreate),
		mismatched,
		notify(dir("c", resource.ActionCreate), svcID("nope"), resource.ActionStart, resource.Delayed),
	}, fakeTable(host))

	errs := graphErrors(t, err)
	var codes []GraphErrorCode
	for _, ge := range errs {
		codes = append(codes, ge.Code)
	}
	assert.Equal(t, []GraphErrorCode{
		ErrCodeDuplicateResource,
		ErrCodeKindMismatch,
		ErrCodeDanglingReference,
	}, codes)

	var ge *GraphError
	assert.True(t, errors.As(err, &ge))
}

func TestActionTable_Merge(t *testing.T) {
	host := newFakeHost()
	base := fakeTable(host)
	override := fakeHandler{host: host, actions: []resource.Action{resource.ActionStart}}

	merged := base.Merge(ActionTable{resource.KindService: override})

	assert.Len(t, merged, 2)
	assert.Equal(t, []resource.Action{resource.ActionStart}, merged[resource.KindService].Actions())
	assert.Len(t, base[resource.KindService].Actions(), len(allActions), "Merge must not modify the receiver")
}
