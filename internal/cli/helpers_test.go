package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/fleet"
	"github.com/roach88/tileconverge/internal/fsys"
	"github.com/roach88/tileconverge/internal/store"
	"github.com/roach88/tileconverge/internal/testutil"
)

const landURL = "https://tiles.example/land.tgz"

// writeConfig writes a one-source configuration rooted in dir and returns
// its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	src := fmt.Sprintf(`srv_root: %s
state_db: %s
data:
  - name: land
    url: %s
    refresh: true
styles:
  - name: default
    tile_directories:
      - name: %s
        min_zoom: 0
        max_zoom: 2
invalidation:
  disabled: true
`, filepath.Join(dir, "srv"), filepath.Join(dir, "state.db"), landURL, filepath.Join(dir, "stores", "a"))
	path := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// fakeHost holds in-memory collaborators for the converge command.
type fakeHost struct {
	log       *testutil.CallLog
	fetcher   *testutil.Fetcher
	extractor *testutil.Extractor
	indexer   *testutil.Indexer
	services  *testutil.Controller
}

func newFakeHost() *fakeHost {
	log := &testutil.CallLog{}
	return &fakeHost{
		log:       log,
		fetcher:   testutil.NewFetcher(log),
		extractor: &testutil.Extractor{Log: log},
		indexer:   &testutil.Indexer{Log: log},
		services:  testutil.NewController(log),
	}
}

func (h *fakeHost) factory(_ context.Context, _ *config.Config, st *store.Store, _ *slog.Logger) (fleet.Capabilities, func(), error) {
	return fleet.Capabilities{
		FS:         fsys.OS{},
		Fetcher:    h.fetcher,
		Extractors: h.extractor.Registry(),
		Indexer:    h.indexer,
		Services:   h.services,
		Ledger:     st,
	}, nil, nil
}

// runCommand executes cmd with args and returns stdout.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
