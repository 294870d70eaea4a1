package invalidate

import (
	"context"
	"fmt"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/resource"
)

// Default locations of the expire queue and its consumer.
const (
	DefaultQueue   = "/var/lib/replicate/expire-queue"
	DefaultService = "expire-tiles.service"
)

// Trigger describes one watched queue and the service that drains it.
type Trigger struct {
	Queue   string
	Service string
}

// WatcherID returns the identity of the watcher resource.
func (t Trigger) WatcherID() resource.ID {
	return resource.ID{Kind: resource.KindDirWatch, Name: t.Queue}
}

// ConsumerID returns the identity of the consumer resource.
func (t Trigger) ConsumerID() resource.ID {
	return resource.ID{Kind: resource.KindService, Name: t.Service}
}

// Resources returns the trigger's resources in declaration order. The queue
// directory is group-writable so upstream producers can enqueue into it.
func (t Trigger) Resources() []*resource.Resource {
	return []*resource.Resource{
		{
			ID:     resource.ID{Kind: resource.KindDirectory, Name: t.Queue},
			Action: resource.ActionCreate,
			State:  resource.DirectoryState{Path: t.Queue, Mode: 0o775},
		},
		{
			ID:     t.WatcherID(),
			Action: resource.ActionWatch,
			State:  resource.WatchState{Dir: t.Queue},
			Notifies: []resource.Notification{
				{Target: t.ConsumerID(), Action: resource.ActionStart, Timing: resource.Immediate},
			},
		},
		{
			ID:     t.ConsumerID(),
			Action: resource.ActionNothing,
			State:  resource.ServiceState{Unit: t.Service},
		},
	}
}

// Settle runs after a pass. When the watcher saw the queue fill but the
// consumer did not start successfully, the observation is reset to empty so
// the next pass fires the consumer again.
func (t Trigger) Settle(ctx context.Context, report *engine.Report, ledger Ledger) error {
	fired := false
	for _, rec := range report.RecordsFor(t.WatcherID()) {
		if rec.Changed && rec.Err == nil {
			fired = true
		}
	}
	if !fired {
		return nil
	}
	for _, rec := range report.RecordsFor(t.ConsumerID()) {
		if rec.Triggered && rec.Err == nil {
			return nil
		}
	}
	if err := ledger.RecordObservation(ctx, t.Queue, false); err != nil {
		return fmt.Errorf("reset observation of %s: %w", t.Queue, err)
	}
	return nil
}
