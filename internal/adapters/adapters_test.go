package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(Config{Type: "fortran"})
	require.Error(t, err)
}

func TestValidateLaunchRequiresProgram(t *testing.T) {
	for _, typ := range []Type{TypeDelve, TypePython, TypeNode} {
		adapter, err := New(Config{Type: typ, Request: "launch"})
		require.NoError(t, err)
		assert.Error(t, adapter.Validate(), "type %s", typ)

		adapter, err = New(Config{Type: typ, Request: "launch", Program: "./app"})
		require.NoError(t, err)
		assert.NoError(t, adapter.Validate(), "type %s", typ)
	}
}

func TestValidateAttachRequiresTarget(t *testing.T) {
	adapter, err := New(Config{Type: TypeDelve, Request: "attach"})
	require.NoError(t, err)
	assert.Error(t, adapter.Validate())

	adapter, err = New(Config{Type: TypeDelve, Request: "attach", ProcessID: 42})
	require.NoError(t, err)
	assert.NoError(t, adapter.Validate())

	adapter, err = New(Config{Type: TypeDelve, Request: "attach", Port: 4040})
	require.NoError(t, err)
	assert.NoError(t, adapter.Validate())
}

func TestValidateRejectsUnknownRequest(t *testing.T) {
	adapter, err := New(Config{Type: TypePython, Request: "observe"})
	require.NoError(t, err)
	assert.Error(t, adapter.Validate())
}

func TestDelveLaunchArgs(t *testing.T) {
	adapter, err := New(Config{
		Type:        TypeDelve,
		Request:     "launch",
		Program:     "./cmd/server",
		Args:        []string{"--port", "8080"},
		Cwd:         "/src/app",
		StopOnEntry: true,
	})
	require.NoError(t, err)

	args, ok := adapter.LaunchArgs().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "debug", args["mode"])
	assert.Equal(t, "./cmd/server", args["program"])
	assert.Equal(t, true, args["stopOnEntry"])
	assert.Equal(t, []string{"--port", "8080"}, args["args"])
	assert.Equal(t, "/src/app", args["cwd"])
}

func TestDelveAttachArgs(t *testing.T) {
	adapter, err := New(Config{Type: TypeDelve, Request: "attach", ProcessID: 42})
	require.NoError(t, err)

	args, ok := adapter.AttachArgs().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "local", args["mode"])
	assert.Equal(t, 42, args["processId"])
}

func TestDebugpyAttachConnectsOverSocket(t *testing.T) {
	adapter, err := New(Config{Type: TypePython, Request: "attach", Host: "localhost", Port: 5678})
	require.NoError(t, err)

	args, ok := adapter.AttachArgs().(map[string]any)
	require.True(t, ok)
	connect, ok := args["connect"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "localhost", connect["host"])
	assert.Equal(t, 5678, connect["port"])
}

func TestAddress(t *testing.T) {
	adapter, err := New(Config{Type: TypeDelve, Request: "launch", Program: "./app"})
	require.NoError(t, err)
	assert.Empty(t, adapter.Address(), "stdio adapter has no address")

	adapter, err = New(Config{Type: TypeDelve, Request: "launch", Program: "./app", Port: 4040})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4040", adapter.Address())
}

func TestNodeLaunchArgsCarryType(t *testing.T) {
	adapter, err := New(Config{Type: TypeNode, Request: "launch", Program: "index.js"})
	require.NoError(t, err)

	args, ok := adapter.LaunchArgs().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pwa-node", args["type"])
	assert.Equal(t, "index.js", args["program"])
}
