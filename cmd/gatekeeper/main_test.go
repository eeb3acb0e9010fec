package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStrategiesCommand(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
auth:
  strategies: [apikey, anonymous]
  api_keys:
    - key: sk-1
      subject: alice
`)

	out, err := execute(t, "strategies", "--config", cfgPath, "--env-file", "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Contains(t, lines[0], "LABEL")
	assert.Regexp(t, `^anonymous\s+2\s+\*noop\.Strategy$`, lines[1])
	assert.Regexp(t, `^apikey\s+1\s+\*apikey\.Strategy$`, lines[2])
}

func TestStrategiesCommand_InvalidConfig(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "auth:\n  strategies: [oauth2]\n")

	_, err := execute(t, "strategies", "--config", cfgPath, "--env-file", "")
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestEnvFileLoaded(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "auth:\n  strategies: [anonymous]\n")
	envPath := writeFile(t, "test.env", "GATEKEEPER_STRATEGIES=oauth2\n")
	t.Cleanup(func() { os.Unsetenv("GATEKEEPER_STRATEGIES") })

	_, err := execute(t, "strategies", "--config", cfgPath, "--env-file", envPath)
	assert.ErrorContains(t, err, "oauth2", "dotenv value must override the YAML chain")
}

func TestEnvFileMissing(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "auth:\n  strategies: [anonymous]\n")

	_, err := execute(t, "strategies", "--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "missing.env")

	t.Chdir(t.TempDir())
	_, err = execute(t, "strategies", "--config", cfgPath)
	assert.NoError(t, err, "a missing default .env is ignored")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, &cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestKeysCommand_RequiresPostgres(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "auth:\n  key_store:\n    type: memory\n")

	for _, args := range [][]string{
		{"keys", "list"},
		{"keys", "create", "--subject", "carol"},
		{"keys", "revoke", "key_123"},
	} {
		_, err := execute(t, append(args, "--config", cfgPath, "--env-file", "")...)
		assert.ErrorIs(t, err, errNoPersistentStore, "args %v", args)
	}
}

func TestKeysCreate_RequiresSubject(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "auth:\n  strategies: [anonymous]\n")

	_, err := execute(t, "keys", "create", "--config", cfgPath, "--env-file", "")
	assert.ErrorContains(t, err, `"subject" not set`)
}

func TestStrategiesCommand_KeyStore(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
auth:
  strategies: [apikey]
  key_store:
    type: memory
`)

	out, err := execute(t, "strategies", "--config", cfgPath, "--env-file", "")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^apikey\s+1\s+\*apikey\.Strategy$`, out)
}
