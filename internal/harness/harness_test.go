package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRun_BackendsTraceIdentically(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/doc_merge.yaml")
	require.NoError(t, err)

	native, err := Run(s, BackendNative)
	require.NoError(t, err)
	viaIPC, err := Run(s, BackendIPC)
	require.NoError(t, err)

	assert.True(t, native.Pass, native.Errors)
	assert.True(t, viaIPC.Pass, viaIPC.Errors)
	assert.Equal(t, native.Trace, viaIPC.Trace)
}

func TestRun_ExpectCaseMismatchFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: a malformed update expected to succeed
space: {type: workspace, id: w}
flow:
  - invoke: pushDocUpdate
    args: {docId: d, entries: ["!x"]}
assertions:
  - type: trace_count
    action: pushDocUpdate
    count: 1
`))
	require.NoError(t, err)

	for _, backend := range Backends {
		result, err := Run(s, backend)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "expected case ok, got MERGE_FAILURE")
	}
}

func TestRun_ExpectResultMismatchFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: result-mismatch
description: wrong timestamp
space: {type: workspace, id: w}
flow:
  - invoke: pushDocUpdate
    args: {docId: d, entries: [x]}
    expect:
      case: ok
      result: {timestamp: 1}
assertions:
  - type: trace_count
    action: pushDocUpdate
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s, BackendNative)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected result")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad-setup
description: setup must succeed
space: {type: workspace, id: w}
setup:
  - invoke: pushDocUpdate
    args: {docId: d, entries: ["!x"]}
flow:
  - invoke: clearClocks
assertions:
  - type: trace_count
    action: clearClocks
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(s, BackendNative)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (pushDocUpdate)")
}

func TestRun_CustomClock(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: clock
description: timestamps follow the configured clock
space: {type: userspace, id: u}
clock: {start_ms: 500, step_ms: 0}
flow:
  - invoke: pushDocUpdate
    args: {docId: d, entries: [x]}
    expect: {case: ok, result: {timestamp: 500}}
  - invoke: pushDocUpdate
    args: {docId: d, entries: [y]}
    expect: {case: ok, result: {timestamp: 501}}
assertions:
  - type: final_state
    action: getDoc
    args: {docId: d}
    expect: {entries: [x, y], timestamp: 501}
`))
	require.NoError(t, err)

	for _, backend := range Backends {
		result, err := Run(s, backend)
		require.NoError(t, err)
		assert.True(t, result.Pass, "%s: %v", backend, result.Errors)
	}
}

func TestRun_UnknownBackend(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	_, err = Run(s, Backend("wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "wasm"`)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, CaseOK, outcome(nil))
	assert.Equal(t, "ERROR", outcome(assert.AnError))
}
