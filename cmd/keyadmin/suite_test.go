package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
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

	issueArgs = issueFlags{}
	extendArgs = extendFlags{}
	listArgs = listFlags{output: "table"}
	exportArgs = exportFlags{format: "xlsx"}
	publishArgs = publishFlags{}
	scheduleArgs = scheduleFlags{}
	checkArgs = checkFlags{}
	serveArgs = serveFlags{}
}

// setupWorkspace points the key store at a fresh directory.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AXIS_PATHS_BASE_DIR", dir)
	t.Setenv("AXIS_CONFIG", "")
	t.Setenv("AXIS_LOGGING_LEVEL", "error")
	return dir
}

// issueKey issues a key through the CLI and returns its token.
func issueKey(t *testing.T, args ...string) string {
	t.Helper()
	output, err := executeCommand(append([]string{"issue"}, args...))
	require.NoError(t, err, output)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
