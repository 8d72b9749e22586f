package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func static(name, value string) FactorSource {
	return FactorSource{Name: name, Read: func() (string, error) { return value, nil }}
}

func failing(name string) FactorSource {
	return FactorSource{Name: name, Read: func() (string, error) { return "", errors.New("unavailable") }}
}

func TestFingerprintJoinsSourcesInOrder(t *testing.T) {
	fm := NewFingerprintManager(WithSources(
		static("mac_address", "AA:BB:CC:DD:EE:FF"),
		static("hostname", "workstation"),
		static("platform", "linux/amd64"),
		static("disk_serial", "0123456789abcdef"),
	))

	want := sha("AA:BB:CC:DD:EE:FF|workstation|linux/amd64|0123456789abcdef")
	assert.Equal(t, want, fm.Fingerprint())
	assert.Len(t, fm.Fingerprint(), 64)
	assert.False(t, fm.Generate().Fallback)
}

func TestFingerprintSkipsFailingSources(t *testing.T) {
	panicky := FactorSource{Name: "disk_serial", Read: func() (string, error) { panic("no wmic") }}

	fm := NewFingerprintManager(WithSources(
		failing("mac_address"),
		static("hostname", "workstation"),
		static("platform", ""),
		panicky,
	))

	assert.Equal(t, sha("workstation"), fm.Fingerprint())
	assert.Equal(t, map[string]string{"hostname": "workstation"}, fm.Generate().Factors)
}

func TestFingerprintFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		nodeName func() (string, error)
		want     string
	}{
		{
			name:     "node name",
			nodeName: func() (string, error) { return "NODE-1", nil },
			want:     sha("NODE-1"),
		},
		{
			name:     "unknown sentinel",
			nodeName: func() (string, error) { return "", errors.New("no node") },
			want:     sha(UnknownDevice),
		},
		{
			name:     "nil node name",
			nodeName: nil,
			want:     sha(UnknownDevice),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := NewFingerprintManager(
				WithSources(failing("mac_address"), failing("hostname")),
				WithNodeName(tt.nodeName),
			)
			assert.Equal(t, tt.want, fm.Fingerprint())
			assert.True(t, fm.Generate().Fallback)
		})
	}
}

func TestFingerprintIsCachedForProcessLifetime(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := FactorSource{Name: "hostname", Read: func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return "host", nil
	}}

	fm := NewFingerprintManager(WithSources(counting))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fm.Fingerprint()
		}()
	}
	wg.Wait()

	first := fm.Fingerprint()
	assert.Equal(t, first, fm.Fingerprint())
	assert.Equal(t, 1, calls)
}

func TestGenerateReturnsCopy(t *testing.T) {
	fm := NewFingerprintManager(WithSources(static("hostname", "host")))

	fp := fm.Generate()
	fp.Factors["hostname"] = "tampered"
	fp.Fingerprint = "tampered"

	assert.Equal(t, "host", fm.Generate().Factors["hostname"])
	assert.Equal(t, sha("host"), fm.Fingerprint())
}

func TestMatchesAndMasking(t *testing.T) {
	fm := NewFingerprintManager(WithSources(static("disk_serial", "0123456789abcdef"), static("hostname", "pc")))

	assert.True(t, fm.Matches(fm.Fingerprint()))
	assert.False(t, fm.Matches(""))
	assert.False(t, fm.Matches("deadbeef"))

	masked := fm.MaskedFactors()
	assert.Equal(t, "0123************", masked["disk_serial"])
	assert.Equal(t, "****", masked["hostname"])
}

func TestDefaultSourcesNeverFail(t *testing.T) {
	fm := NewFingerprintManager()
	fp := fm.Fingerprint()
	require.Len(t, fp, 64)
	assert.Equal(t, fp, fm.Fingerprint())
}

func TestNodeNameFallsBackToUname(t *testing.T) {
	ok := func(v string) func() (string, error) { return func() (string, error) { return v, nil } }
	fail := func() (string, error) { return "", errors.New("denied") }

	tests := []struct {
		name     string
		hostname func() (string, error)
		uname    func() (string, error)
		want     string
		wantErr  bool
	}{
		{"hostname kept raw", ok("Build-Box.Local"), ok("kernel-node"), "Build-Box.Local", false},
		{"hostname error", fail, ok("kernel-node"), "kernel-node", false},
		{"blank hostname", ok("  "), ok("kernel-node"), "kernel-node", false},
		{"both fail", fail, fail, "", true},
		{"empty uname", fail, ok(""), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nodeNameFrom(tt.hostname, tt.uname)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeNameOnHost(t *testing.T) {
	name, err := NodeName()
	if err != nil {
		t.Skipf("no node name on this host: %v", err)
	}
	assert.NotEmpty(t, name)
}
