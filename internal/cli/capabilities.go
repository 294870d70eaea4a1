package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/tileconverge/internal/archive"
	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/fetch"
	"github.com/roach88/tileconverge/internal/fleet"
	"github.com/roach88/tileconverge/internal/fsys"
	"github.com/roach88/tileconverge/internal/shapeindex"
	"github.com/roach88/tileconverge/internal/service"
	"github.com/roach88/tileconverge/internal/store"
)

// CapabilityFactory builds the collaborators a pass drives. The returned
// release function is called once the command is done with them.
type CapabilityFactory func(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (fleet.Capabilities, func(), error)

// HostCapabilities drives the real host: the local filesystem, HTTP with
// validators persisted in st, the built-in extractors, the shapeindex
// binary, and systemd over D-Bus.
func HostCapabilities(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (fleet.Capabilities, func(), error) {
	systemd, err := service.NewSystemd(ctx, logger)
	if err != nil {
		return fleet.Capabilities{}, nil, err
	}

	caps := fleet.Capabilities{
		FS: fsys.OS{},
		Fetcher: fetch.NewHTTP(
			fetch.WithValidators(st),
			fetch.WithTimeout(cfg.Timeout()),
			fetch.WithLogger(logger),
		),
		Extractors: archive.Default(),
		Indexer:    shapeindex.Command{Binary: cfg.ShapeIndexBinary, Logger: logger},
		Services:   systemd,
		Ledger:     st,
	}
	return caps, systemd.Close, nil
}
