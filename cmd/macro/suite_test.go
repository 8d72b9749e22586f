package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"axiscli/internal/keys"
	"axiscli/internal/keystore"
)

var timeout = 30 * time.Second

// executeCommand executes a CLI command with the given args and returns the output and error.
func executeCommand(args []string) (string, error) {
	defer resetCmdArgs()

	buf := new(bytes.Buffer)

	cmd := rootCmd
	cmd.SetArgs(args)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()

	return buf.String(), err
}

// resetCmdArgs resets all command-specific flags to their default values.
func resetCmdArgs() {
	rootArgs = rootFlags{timeout: timeout}

	statusArgs = statusFlags{output: "table"}
	fingerprintArgs = fingerprintFlags{}
}

// setupIssuer creates an issuing key store whose aggregate registry the
// client reads over the file channel, and a fresh client workspace.
func setupIssuer(t *testing.T) *keys.Manager {
	t.Helper()
	dir := t.TempDir()
	issuerDir := filepath.Join(dir, "issuer")
	registryFile := filepath.Join(issuerDir, "keys.json")

	t.Setenv("AXIS_CONFIG", "")
	t.Setenv("AXIS_LOGGING_LEVEL", "error")
	t.Setenv("AXIS_PATHS_BASE_DIR", filepath.Join(dir, "client"))
	t.Setenv("AXIS_REGISTRY_CHANNEL", "file")
	t.Setenv("AXIS_REGISTRY_FILE_PATH", registryFile)

	m := keys.NewManager(keystore.Open(filepath.Join(issuerDir, "keys"), registryFile))
	_, err := m.Rebuild(context.Background())
	require.NoError(t, err)
	return m
}

// issueToken issues key and returns its activation token.
func issueToken(t *testing.T, m *keys.Manager, key string, days int, hwid *string) string {
	t.Helper()
	ctx := context.Background()
	_, err := m.Issue(ctx, key, days, hwid)
	require.NoError(t, err)
	token, err := m.Token(ctx, key)
	require.NoError(t, err)
	return token
}
