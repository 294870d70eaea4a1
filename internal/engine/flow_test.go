package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/resource"
)

func TestUUIDv7Generator(t *testing.T) {
	var gen PassIDGenerator = UUIDv7Generator{}

	const n = 64
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{}, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n, "pass ids must be unique")

	for id := range seen {
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
	}
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("nightly", "retry")
	assert.Equal(t, []string{"nightly", "retry"}, []string{gen.Generate(), gen.Generate()})
	assert.PanicsWithValue(t, "engine: FixedGenerator exhausted", func() { gen.Generate() })

	assert.Panics(t, func() { NewFixedGenerator().Generate() })
}

func TestExecutor_PassIDs(t *testing.T) {
	resources := []*resource.Resource{dir("a", resource.ActionCreate)}

	t.Run("default is uuid v7", func(t *testing.T) {
		report := runPass(t, newTestExecutor(t, newFakeHost(), resources))
		parsed, err := uuid.Parse(report.PassID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
	})

	t.Run("generator option", func(t *testing.T) {
		e := newTestExecutor(t, newFakeHost(), resources, WithPassIDGenerator(NewFixedGenerator("boot")))
		assert.Equal(t, "boot", runPass(t, e).PassID)
	})
}
