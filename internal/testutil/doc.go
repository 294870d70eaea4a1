// Package testutil holds deterministic stand-ins for the capabilities a
// convergence pass consumes: a wall clock, pass IDs, and fakes for the
// fetcher, extractor, indexer and service controller.
//
// The fakes share a CallLog so a test can assert the order in which a pass
// reached its capabilities, e.g. that a source was fetched, extracted and
// indexed before the renderer restarted.
//
// Production packages never import testutil.
package testutil
