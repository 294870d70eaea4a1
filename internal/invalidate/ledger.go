package invalidate

import (
	"context"
	"sync"
)

// Ledger remembers the last observation of each watched directory.
// *store.Store implements it.
type Ledger interface {
	LastObservation(ctx context.Context, path string) (nonEmpty, known bool, err error)
	RecordObservation(ctx context.Context, path string, nonEmpty bool) error
}

// MemoryLedger keeps observations in memory. It is only useful when the
// same process runs every pass.
type MemoryLedger struct {
	mu  sync.Mutex
	obs map[string]bool
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{obs: make(map[string]bool)}
}

func (m *MemoryLedger) LastObservation(_ context.Context, path string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonEmpty, ok := m.obs[path]
	return nonEmpty, ok, nil
}

func (m *MemoryLedger) RecordObservation(_ context.Context, path string, nonEmpty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs[path] = nonEmpty
	return nil
}
