package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nbstore", cmd.Use)
	assert.Contains(t, cmd.Long, "Unix socket")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"doc", "push"}, {"doc", "get"}, {"doc", "delete"}, {"doc", "timestamps"}, {"doc", "replay"},
		{"blob", "set"}, {"blob", "get"}, {"blob", "delete"}, {"blob", "list"}, {"blob", "release"}, {"blob", "recover"},
		{"clock", "get"}, {"clock", "set"}, {"clock", "pushed"}, {"clock", "set-pushed"}, {"clock", "clear"},
		{"legacy", "get"}, {"legacy", "import"},
		{"config", "show"}, {"config", "validate"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "data-dir", "socket"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "flag --%s", name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestDocPushFlags(t *testing.T) {
	cmd := NewRootCommand()
	push, _, err := cmd.Find([]string{"doc", "push"})
	require.NoError(t, err)

	fileFlag := push.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)
}

func TestBlobDeleteFlags(t *testing.T) {
	cmd := NewRootCommand()
	del, _, err := cmd.Find([]string{"blob", "delete"})
	require.NoError(t, err)

	flag := del.Flags().Lookup("permanently")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestLegacyRequiresDB(t *testing.T) {
	cmd := NewRootCommand()
	legacyCmd, _, err := cmd.Find([]string{"legacy"})
	require.NoError(t, err)

	dbFlag := legacyCmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExecute_UnknownCommandIsCommandError(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"frobnicate"}, out, errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "Error [COMMAND]")
}

func TestExecute_WrongArgCount(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"--format", "json", "doc", "get", "workspace"}, out, errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out.String(), `"status":"error"`)
}
