// Package fleet assembles the whole resource graph of one tile host from
// its configuration and runs convergence passes over it.
//
// ARCHITECTURE:
//
//	config.Config ──Build──> Plan ──Graph(caps)──> engine.Graph
//	                                                   │
//	Converger.Converge ──> store.BeginPass ──> engine.Executor.RunWithID
//	                                                   │
//	                       store.FinishPass <──────────┤
//	                       metrics.Observe  <──────────┘
//
// Declaration order follows the host layout: data root, render service,
// per-source ingestion chains, tiles root, per-style pyramids, then the
// cache invalidation trigger.
//
// CRITICAL PATTERNS:
//   - Build is pure: it needs no capabilities, so a plan can be printed on a
//     machine that could never converge it.
//   - Each Converge is an independent pass. Nothing but the store's history
//     and watcher ledger survives between passes.
//   - Recording history is best-effort. A store failure is logged and never
//     changes the outcome of a pass.
package fleet
