// Package invalidate builds the cache invalidation trigger: a watcher on
// the expire queue directory wired to the one-shot consumer service that
// drains it.
//
// ARCHITECTURE:
//
//	directory[queue] ── create
//	dir_watch[queue] ── watch ──(changed, immediate)──> service[consumer]:start
//	service[consumer] ── nothing
//
// The watcher is edge-triggered. It records "changed" only when the queue
// goes from empty to non-empty, so the consumer starts once per transition
// and is not started again while the queue is still being filled upstream.
// The last observation per directory is kept in a Ledger because passes
// share no memory.
//
// CRITICAL PATTERNS:
//   - The watcher never mutates the queue; draining belongs to the consumer.
//   - A directory never observed before counts as previously empty.
package invalidate
