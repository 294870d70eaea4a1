package fetch

import (
	"context"
	"sync"
)

// Validators remembers the ETag of each source URL between downloads.
type Validators interface {
	Validator(ctx context.Context, url string) (etag string, ok bool, err error)
	SaveValidator(ctx context.Context, url, etag string) error
}

// MemoryValidators keeps validators in memory.
//
// Thread-safety: safe for concurrent use.
type MemoryValidators struct {
	mu    sync.Mutex
	etags map[string]string
}

// NewMemoryValidators creates an empty in-memory validator set.
func NewMemoryValidators() *MemoryValidators {
	return &MemoryValidators{etags: make(map[string]string)}
}

func (m *MemoryValidators) Validator(_ context.Context, url string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	etag, ok := m.etags[url]
	return etag, ok, nil
}

func (m *MemoryValidators) SaveValidator(_ context.Context, url, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags[url] = etag
	return nil
}
