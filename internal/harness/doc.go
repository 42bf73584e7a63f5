// Package harness runs conformance scenarios against the storage stack.
//
// A scenario is a YAML file describing a sequence of storage operations on
// one space, the outcome each should have, and assertions on the resulting
// trace and final storage state. The same scenario runs against every
// backend: in-process handlers over the native registry, and a daemon
// reached through an ipc.Client. Both must produce the same trace.
//
// # Scenario Format
//
//	name: doc_push_merge
//	description: "Updates merge into one snapshot"
//	space: { type: workspace, id: ws1 }
//	clock: { start_ms: 1704067200000, step_ms: 1000 }
//	setup:
//	  - invoke: setBlob
//	    args: { key: logo, data: "png", mime: image/png }
//	flow:
//	  - invoke: pushDocUpdate
//	    args: { docId: page1, entries: [a] }
//	    expect:
//	      case: ok
//	      result: { timestamp: 1704067201000 }
//	assertions:
//	  - type: trace_count
//	    action: pushDocUpdate
//	    count: 1
//	  - type: final_state
//	    action: getDoc
//	    args: { docId: page1 }
//	    expect: { entries: [a] }
//
// Document binaries are written as entry lists. They are encoded and merged
// with testutil.UnionMerger, so merged state reads back as a sorted list.
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: an operation run after the flow returns a matching result
//
// # Determinism
//
// Server-assigned timestamps come from a testutil.StepClock that advances
// on every read, so traces are reproducible and can be compared against
// golden files in testdata/golden.
package harness
