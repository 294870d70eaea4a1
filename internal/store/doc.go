// Package store provides SQLite-backed storage for run history and the two
// ledgers that outlive a pass.
//
// Tables:
//   - passes: one row per convergence pass (status, error, config digest)
//   - change_records: every evaluation of a pass, in evaluation order
//   - watch_observations: last observed emptiness per watched directory
//   - fetch_validators: last ETag per source URL
//
// History is informational. A pass never reads change records back; it
// re-derives host state by probing. The ledgers are the exception: an
// edge-triggered watcher must remember its previous observation, and a
// conditional download needs the previous ETag.
//
// Every listing orders by the seq columns, never by timestamp. Connections
// run in WAL mode with a five second busy timeout, so the history command
// can read while a pass writes.
package store
