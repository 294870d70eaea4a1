// Package engine implements the convergence executor and its notification bus.
//
// A pass evaluates every declared resource once, in declaration order, and
// lets resources that changed notify actions on other resources.
//
// ARCHITECTURE:
//
// Single-Threaded Pass:
// A pass runs in the caller's goroutine. Resources commonly share filesystem
// state (an extraction directory read by the indexer, a tile root written by
// several link resources), so no two evaluations ever overlap. This ensures:
// - Predictable evaluation order
// - Reproducible change records
// - Simple reasoning about which notification caused which action
//
// Pass Flow:
// 1. Resources evaluated in declaration order (action "nothing" is skipped)
// 2. Probe compares desired and observed state; Apply runs only on mismatch
// 3. A changed resource enqueues its notification edges on the Bus
// 4. Immediate edges fire before the next declared resource is evaluated
// 5. Delayed edges fire after the last resource, deduplicated, to a fixed point
//
// Notified actions are unconditional: the target's Probe is not consulted.
//
// Nothing is carried from one pass to the next. Each pass re-derives current
// state by probing the host, which is what makes passes idempotent and safe
// to interleave with manual intervention.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Change records are stamped with their evaluation order by Clock.Stamp.
// Ordering never depends on wall-clock time.
//
// Bounded Propagation:
// Immediate chains and delayed rounds are both bounded by the configured
// maximum iteration count; exceeding it is a NotificationCycleError.
package engine
