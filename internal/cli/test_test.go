package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommand_HarnessScenariosPass(t *testing.T) {
	e := newEnv(t)

	var result TestResult
	e.runJSON(t, nil, &result, "test", scenariosDir)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Zero(t, result.Failed)
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
	}
}

func TestTestCommand_FilterAndBackend(t *testing.T) {
	e := newEnv(t)

	out, errOut, code := e.run(t, nil, "test", scenariosDir, "--filter", "blob_*", "--backend", "native")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "✓ blob_lifecycle")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "doc_merge")
}

func TestTestCommand_GoldenMismatchAndUpdate(t *testing.T) {
	e := newEnv(t)
	golden := t.TempDir()
	path := filepath.Join(golden, "peer_clocks.golden")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	out, _, code := e.run(t, nil, "test", scenariosDir, "--filter", "peer_*", "--golden", golden)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ peer_clocks")
	assert.Contains(t, out, "trace does not match golden file")

	out, _, code = e.run(t, nil, "test", scenariosDir, "--filter", "peer_*", "--golden", golden, "--update")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "(golden updated)")

	want, err := os.ReadFile(filepath.Join(scenariosDir, "..", "golden", "peer_clocks.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestTestCommand_Errors(t *testing.T) {
	e := newEnv(t)

	_, _, code := e.run(t, nil, "test", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, ExitCommandError, code)

	_, errOut, code := e.run(t, nil, "test", scenariosDir, "--backend", "grpc")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "invalid backend")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))
	out, _, code := e.run(t, nil, "test", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	e := newEnv(t)
	out, _, code := e.run(t, nil, "test", t.TempDir())
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No scenarios found.")
}
