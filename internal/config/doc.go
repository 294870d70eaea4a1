// Package config loads and validates the fleet configuration: the data
// sources to ingest, the styles and their tile stores, and the cache
// invalidation queue.
//
// A Config is an explicit value threaded into graph construction; nothing
// reads configuration from package state.
//
// Two source formats are accepted, selected by file extension:
//
//	.cue         unified with the embedded #Config schema, then decoded
//	.yaml, .yml  decoded strictly (unknown fields are errors)
//
// Both paths end with ApplyDefaults and Validate. Validate does not stop at
// the first problem; it returns every ValidationError so an operator can fix
// a file in one go.
package config
