package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	t.Run("parses yaml with initialize args", func(t *testing.T) {
		s, err := ParseScenario([]byte(`
label: Debug server
adapter: go
request: launch
cwd: /work/project
program: ./cmd/server
initialize_args:
  mode: debug
  buildFlags: "-tags=dev"
  env:
    PORT: "8080"
`))
		require.NoError(t, err)
		assert.Equal(t, "Debug server", s.Label)
		assert.Equal(t, AdapterGo, s.Adapter)
		assert.Equal(t, RequestLaunch, s.Request)
		assert.Equal(t, "debug", s.InitializeArg("mode").String())
		assert.Equal(t, "8080", s.InitializeArg("env.PORT").String())
	})

	t.Run("defaults request to launch", func(t *testing.T) {
		s, err := ParseScenario([]byte("label: x\nadapter: python\n"))
		require.NoError(t, err)
		assert.Equal(t, RequestLaunch, s.Request)
	})

	t.Run("rejects unknown adapter", func(t *testing.T) {
		_, err := ParseScenario([]byte("label: x\nadapter: ruby\n"))
		assert.ErrorContains(t, err, "unknown adapter")
	})

	t.Run("rejects bad request kind", func(t *testing.T) {
		_, err := ParseScenario([]byte("label: x\nadapter: lldb\nrequest: restart\n"))
		assert.ErrorContains(t, err, "launch or attach")
	})

	t.Run("rejects disagreeing request in initialize args", func(t *testing.T) {
		_, err := ParseScenario([]byte("label: x\nadapter: php\nrequest: attach\ninitialize_args:\n  request: launch\n"))
		assert.ErrorContains(t, err, "disagrees")
	})

	t.Run("rejects missing label", func(t *testing.T) {
		_, err := ParseScenario([]byte("adapter: gdb\n"))
		assert.ErrorIs(t, err, ErrInvalidScenario)
	})
}

func TestScenarioValidateRawArgs(t *testing.T) {
	s := &Scenario{Label: "x", Adapter: AdapterCustom, Request: RequestAttach, InitializeArgs: []byte(`[1,2]`)}
	assert.ErrorContains(t, s.Validate(), "JSON object")

	s.InitializeArgs = []byte(`{"request":"attach","port":4711}`)
	require.NoError(t, s.Validate())
	assert.EqualValues(t, 4711, s.InitializeArg("port").Int())
}

func TestLoadScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.yaml")
	require.NoError(t, os.WriteFile(path, []byte("label: node\nadapter: javascript\nrequest: attach\n"), 0o644))

	s, err := LoadScenarioFile(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterJavaScript, s.Adapter)
	assert.Equal(t, RequestAttach, s.Request)

	_, err = LoadScenarioFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
