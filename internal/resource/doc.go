// Package resource provides the value types shared by the convergence engine
// and the pipelines built on it.
//
// This package contains type definitions only. The engine, the pipelines and
// the capability adapters all import resource; resource imports nothing
// internal.
//
// Key design constraints:
//   - The set of kinds is closed; every kind has one typed state descriptor
//   - A resource is identified by its (kind, name) pair, unique within a pass
//   - Notifications reference targets by ID and are resolved when the graph is built
//   - Nothing here survives a pass; state lives on the host that was converged
package resource
