// Package harness runs convergence scenarios against a real engine.
//
// A scenario declares a host configuration and a sequence of passes. Before
// each pass the scenario changes the simulated world (what upstream serves,
// which fetches fail, what sits in the expire queue); the pass then runs
// through fleet.Converger exactly as the converge command runs it, with the
// same plan, handlers and history store.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: land_ingest
//	description: "What this scenario validates"
//	config:
//	  srv_root: $ROOT/srv
//	  data:
//	    - name: land
//	      url: https://tiles.example/land.tgz
//	      refresh: true
//	passes:
//	  - serve: { "https://tiles.example/land.tgz": "v1" }
//	    expect: { changed: 5 }
//	  - enqueue: [expire-0001.list]
//	assertions:
//	  - type: trace_count
//	    call: restart renderd.service
//	    count: 1
//	  - type: final_state
//	    pass: 2
//	    status: ok
//
// $ROOT is the scenario's private temporary directory. Traces print it as
// $ROOT too, which keeps them identical across runs.
//
// # Assertion Types
//
//   - trace_contains: a capability call was made
//   - trace_order: calls were made in the given order
//   - trace_count: a call was made exactly N times
//   - record: a resource's record in one pass has the given flags
//   - final_state: the recorded history holds the pass with a status
//
// # Deterministic Testing
//
// The harness uses:
//   - Sequential pass IDs (pass-0001, pass-0002, ...)
//   - A fixed clock advancing one minute per pass
//   - A fresh root and state database per scenario
//   - In-memory fakes for HTTP, extraction, indexing and systemd
//
// Traces are serialized as canonical JSON, so golden files compare byte for
// byte.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/land_ingest.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
