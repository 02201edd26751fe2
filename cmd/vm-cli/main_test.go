package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLIFlow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hellokv.yaml")
	cfg := "context:\n  type: db\n  db_path: " + filepath.Join(dir, "state.db") +
		"\nrepo: " + filepath.Join(dir, "repo") +
		"\ncache_size: 16\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	out, err := run(t, "deploy", "-c", cfgPath, "-a", "hello.alice.near")
	require.NoError(t, err)
	assert.Contains(t, out, "Deployed Hello on hello.alice.near")

	out, err = run(t, "call", "-c", cfgPath, "-a", "hello.alice.near", "-m", "initialize",
		"--args", `{"owner":"alice"}`, "-s", "alice", "-d", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)

	out, err = run(t, "call", "-c", cfgPath, "-a", "hello.alice.near", "-m", "set_data",
		"--args", `{"key":"k","value":"v"}`, "-s", "alice", "-d", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `DATA_SET: {\"key\": \"k\", \"value\": \"v\"}`)

	_, err = run(t, "call", "-c", cfgPath, "-a", "hello.alice.near", "-m", "set_data",
		"--args", `{"key":"k","value":"v2"}`, "-s", "bob", "-d", "0")
	assert.Error(t, err)

	out, err = run(t, "view", "-c", cfgPath, "-a", "hello.alice.near", "-m", "get_data", "--args", `{"key":"k"}`)
	require.NoError(t, err)
	assert.Equal(t, "\"v\"\n", out)

	out, err = run(t, "logs", "-c", cfgPath, "-a", "hello.alice.near")
	require.NoError(t, err)
	assert.Contains(t, out, `DATA_SET: {"key": "k", "value": "v"}`)

	out, err = run(t, "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "hello.alice.near")

	out, err = run(t, "abi", "-c", cfgPath, "-a", "hello.alice.near")
	require.NoError(t, err)
	assert.Contains(t, out, `"display_name": "SetData"`)
}

func TestCLIRejectsBadDeposit(t *testing.T) {
	_, err := run(t, "call", "-a", "hello.near", "-m", "donate", "-s", "bob", "-d", "lots")
	assert.ErrorContains(t, err, "invalid deposit")
}

func TestCLIRejectsMemoryBackend(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "repo")
	_, err := run(t, "deploy", "--context", "memory", "-r", repo, "-a", "hello.alice.near")
	assert.ErrorContains(t, err, "does not persist")
	assert.NoDirExists(t, repo)

	// the flag is persistent, reset it for the other tests
	contextType = ""
	repoDir = ""
}
