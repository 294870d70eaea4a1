package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/fetch"
	"github.com/roach88/tileconverge/internal/resource"
)

func TestClock_Advance(t *testing.T) {
	c := NewClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())

	got := c.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), got)
	assert.Equal(t, got, c.Now())
}

func TestSequentialPassIDs(t *testing.T) {
	g := NewSequentialPassIDs("")
	assert.Equal(t, "pass-0001", g.Generate())
	assert.Equal(t, "pass-0002", g.Generate())

	custom := NewSequentialPassIDs("run")
	assert.Equal(t, "run-0001", custom.Generate())
}

func TestSequentialPassIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialPassIDs("p")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, dup := seen.LoadOrStore(g.Generate(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
}

func TestFetcher_ConditionalSemantics(t *testing.T) {
	ctx := context.Background()
	log := &CallLog{}
	f := NewFetcher(log)
	dest := filepath.Join(t.TempDir(), "data", "land.tgz")
	url := "https://example.org/land.tgz"

	_, err := f.Fetch(ctx, url, dest, resource.Revalidate)
	assert.True(t, fetch.IsFetchFailure(err), "unknown URL fails")

	f.Serve(url, []byte("v1"))
	res, err := f.Fetch(ctx, url, dest, resource.Revalidate)
	require.NoError(t, err)
	assert.Equal(t, fetch.Changed, res)

	res, err = f.Fetch(ctx, url, dest, resource.Revalidate)
	require.NoError(t, err)
	assert.Equal(t, fetch.Unchanged, res)

	f.Fail(url, errors.New("503"))
	_, err = f.Fetch(ctx, url, dest, resource.Revalidate)
	assert.True(t, fetch.IsFetchFailure(err))
	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body), "failed fetch leaves the file untouched")

	f.Serve(url, []byte("v2"))
	res, err = f.Fetch(ctx, url, dest, resource.CreateIfMissing)
	require.NoError(t, err)
	assert.Equal(t, fetch.Unchanged, res, "create-if-missing never refetches")

	assert.Equal(t, []string{
		"fetch " + url,
		"fetch " + url,
		"fetch " + url,
		"fetch " + url,
	}, log.Calls())
}

func TestController_Jobs(t *testing.T) {
	ctx := context.Background()
	log := &CallLog{}
	c := NewController(log)

	active, err := c.Active(ctx, "renderd.service")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, c.Start(ctx, "renderd.service"))
	active, _ = c.Active(ctx, "renderd.service")
	assert.True(t, active)

	c.Fail("renderd.service", errors.New("job failed"))
	assert.Error(t, c.Restart(ctx, "renderd.service"))

	assert.Equal(t, []string{"start renderd.service", "restart renderd.service"}, log.Calls())
	log.Reset()
	assert.Empty(t, log.Calls())
}
