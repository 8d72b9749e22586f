package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscli/pkg/contracts/domain"
)

func licenseFile() string {
	return filepath.Join(os.Getenv("AXIS_PATHS_BASE_DIR"), "license.dat")
}

func TestActivateAndStatus(t *testing.T) {
	m := setupIssuer(t)
	token := issueToken(t, m, "K1", 30, nil)

	output, err := executeCommand([]string{"activate", token})
	require.NoError(t, err, output)
	assert.Contains(t, output, "✔ License valid")
	assert.FileExists(t, licenseFile())

	output, err = executeCommand([]string{"status"})
	require.NoError(t, err, output)
	assert.Contains(t, output, "active")

	output, err = executeCommand([]string{"status", "-o", "json"})
	require.NoError(t, err, output)
	var result domain.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, domain.LicenseStatusActive, result.Status)
	assert.NotContains(t, result.Key, "K1", "key is masked")
}

func TestStatusAfterRevocation(t *testing.T) {
	m := setupIssuer(t)
	token := issueToken(t, m, "K1", 30, nil)

	_, err := executeCommand([]string{"activate", token})
	require.NoError(t, err)

	_, err = m.Revoke(context.Background(), "K1")
	require.NoError(t, err)

	output, err := executeCommand([]string{"status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoked")
	assert.Contains(t, output, "revoked")
	assert.NoFileExists(t, licenseFile())
}

func TestStatusWithoutActivation(t *testing.T) {
	setupIssuer(t)

	output, err := executeCommand([]string{"status"})
	require.Error(t, err)
	assert.Contains(t, output, string(domain.LicenseStatusNotActivated))
}

func TestActivateRejects(t *testing.T) {
	m := setupIssuer(t)
	other := "another-device"
	bound := issueToken(t, m, "K2", 30, &other)
	valid := issueToken(t, m, "K3", 30, nil)

	tests := []struct {
		name   string
		token  string
		errMsg string
	}{
		{"garbage", "not-a-token", "format"},
		{"tampered", strings.Replace(valid, ".", "x.", 1), "integrity"},
		{"other device", bound, "different device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand([]string{"activate", tt.token})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.NoFileExists(t, licenseFile())
		})
	}
}

func TestDeactivate(t *testing.T) {
	m := setupIssuer(t)
	token := issueToken(t, m, "K1", 30, nil)

	_, err := executeCommand([]string{"activate", token})
	require.NoError(t, err)

	output, err := executeCommand([]string{"deactivate"})
	require.NoError(t, err)
	assert.Contains(t, output, "activation removed")
	assert.NoFileExists(t, licenseFile())
}

func TestFingerprintCmd(t *testing.T) {
	setupIssuer(t)

	output, err := executeCommand([]string{"fingerprint"})
	require.NoError(t, err)
	first := strings.TrimSpace(output)
	assert.NotEmpty(t, first)

	output, err = executeCommand([]string{"fingerprint", "--factors"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, first+"\n"), "fingerprint is stable")
	assert.Contains(t, output, "platform")
}
