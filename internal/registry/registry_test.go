package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscli/internal/config"
	licenseErrors "axiscli/internal/errors"
	"axiscli/pkg/contracts/domain"
)

func sampleRegistry() domain.Registry {
	hwid := "9f86d081884c7d659a2feaa0c55ad015"
	resetAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return domain.Registry{
		"AAAA-BBBB-CCCC-DDDD": {
			Key:     "AAAA-BBBB-CCCC-DDDD",
			Expires: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			Created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		"ZZZZ-YYYY-XXXX-WWWW": {
			Key:         "ZZZZ-YYYY-XXXX-WWWW",
			HWID:        &hwid,
			Expires:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			Created:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			HWIDResetAt: &resetAt,
		},
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, err := Marshal(sampleRegistry())
	require.NoError(t, err)
	second, err := Marshal(sampleRegistry())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	parsed, err := Parse(first)
	require.NoError(t, err)
	assert.Equal(t, sampleRegistry(), parsed)

	empty, err := Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(empty))
}

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(`{"K1":{"key":"","hwid":null,"expires":"2030-01-01T00:00:00Z","revoked":false,"created":"2026-01-01T00:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, "K1", reg["K1"].Key)
	assert.Nil(t, reg["K1"].HWID)

	_, err = Parse([]byte(`[not json`))
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)
}

func TestFileChannel(t *testing.T) {
	ctx := context.Background()
	ch := NewFileChannel(filepath.Join(t.TempDir(), "shared", "keys.json"))

	_, err := ch.Fetch(ctx)
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)

	require.NoError(t, ch.Publish(ctx, []byte(`{}`)))
	got, err := ch.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ch.Fetch(cancelled)
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)
}

func TestHTTPChannelFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"K1":{"key":"K1"}}`))
	}))
	defer srv.Close()

	ch, err := NewHTTPChannel(srv.URL+"/keys.json", WithRetries(0))
	require.NoError(t, err)

	first, err := ch.Fetch(context.Background())
	require.NoError(t, err)
	second, err := ch.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPChannelFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
		{"not json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			ch, err := NewHTTPChannel(srv.URL, WithRetries(0), WithRetryWait(time.Millisecond, time.Millisecond))
			require.NoError(t, err)

			_, err = ch.Fetch(context.Background())
			assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)
		})
	}
}

func TestHTTPChannelFetchRefusesOversizedDocument(t *testing.T) {
	document := []byte(`{"keys":{"K1":{"expires":"2026-11-17T12:00:00Z","created":"2026-10-18T12:00:00Z","hwid":null,"revoked":false}}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(document)
	}))
	defer srv.Close()

	small, err := NewHTTPChannel(srv.URL, WithRetries(0), WithMaxDocumentSize(int64(len(document)-1)))
	require.NoError(t, err)
	_, err = small.Fetch(context.Background())
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)

	exact, err := NewHTTPChannel(srv.URL, WithRetries(0), WithMaxDocumentSize(int64(len(document))))
	require.NoError(t, err)
	got, err := exact.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, document, got)
}

func TestHTTPChannelRequiresHTTPS(t *testing.T) {
	_, err := NewHTTPChannel("http://example.com/keys.json")
	assert.Error(t, err)

	_, err = NewHTTPChannel("http://localhost:8080/keys.json", WithLocalhost(false))
	assert.Error(t, err)

	_, err = NewHTTPChannel("https://example.com/keys.json", WithBindURL("http://example.com/bind"))
	assert.Error(t, err)

	_, err = NewHTTPChannel("https://raw.githubusercontent.com/o/r/main/keys.json")
	assert.NoError(t, err)
}

func TestHTTPChannelBind(t *testing.T) {
	var got domain.BindRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		switch got.Key {
		case "OK":
			w.WriteHeader(http.StatusNoContent)
		case "TAKEN":
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":409,"error_code":"DEVICE_MISMATCH"}`))
		case "GONE":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":403,"error_code":"LICENSE_REVOKED"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ch, err := NewHTTPChannel(srv.URL+"/keys.json", WithRetries(0), WithBindURL(srv.URL+"/api/v1/bindings"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ch.Bind(ctx, "OK", "hw-1"))
	assert.Equal(t, domain.BindRequest{Key: "OK", HWID: "hw-1"}, got)

	assert.ErrorIs(t, ch.Bind(ctx, "TAKEN", "hw-1"), licenseErrors.ErrDeviceMismatch)
	assert.ErrorIs(t, ch.Bind(ctx, "GONE", "hw-1"), licenseErrors.ErrRevoked)
	assert.ErrorIs(t, ch.Bind(ctx, "??", "hw-1"), licenseErrors.ErrChannelUnavailable)

	noBind, err := NewHTTPChannel(srv.URL + "/keys.json")
	require.NoError(t, err)
	assert.NoError(t, noBind.Bind(ctx, "TAKEN", "hw-1"))
	assert.ErrorIs(t, noBind.Publish(ctx, []byte(`{}`)), licenseErrors.ErrChannelUnavailable)
}

func TestGitHubChannel(t *testing.T) {
	var stored []byte
	var sha string
	var puts int
	var lastPut map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/licenses/contents/keys.json", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			if stored == nil {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"type":     "file",
				"encoding": "base64",
				"path":     "keys.json",
				"sha":      sha,
				"content":  base64.StdEncoding.EncodeToString(stored),
			})
		case http.MethodPut:
			lastPut = map[string]interface{}{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastPut))
			content, err := base64.StdEncoding.DecodeString(lastPut["content"].(string))
			assert.NoError(t, err)
			stored = content
			puts++
			sha = fmt.Sprintf("sha-%d", puts)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": map[string]string{"sha": sha}})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := github.NewClient(nil)
	client.BaseURL, _ = url.Parse(srv.URL + "/")

	ch, err := NewGitHubChannelWithClient(client, GitHubOptions{Owner: "acme", Repo: "licenses"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Fetch(ctx)
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)

	require.NoError(t, ch.Publish(ctx, []byte(`{"v":1}`)))
	assert.Nil(t, lastPut["sha"], "create must not send a sha")
	assert.Equal(t, "main", lastPut["branch"])

	got, err := ch.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, ch.Publish(ctx, []byte(`{"v":2}`)))
	assert.NotNil(t, lastPut["sha"], "update must send the current sha")

	lastPut = nil
	require.NoError(t, ch.Publish(ctx, []byte(`{"v":2}`)))
	assert.Nil(t, lastPut, "unchanged content is not committed")
}

func TestNewGitHubChannelRequiresRepo(t *testing.T) {
	_, err := NewGitHubChannelWithClient(github.NewClient(nil), GitHubOptions{Owner: "acme"})
	assert.Error(t, err)
}

func TestSheetRowsRoundTrip(t *testing.T) {
	rows := registryToRows(sampleRegistry())
	require.Len(t, rows, 3)
	assert.Equal(t, sheetHeader, rows[0])
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", rows[1][0])
	assert.Equal(t, "", rows[1][1])

	reg, err := rowsToRegistry(rows)
	require.NoError(t, err)
	assert.Equal(t, sampleRegistry(), reg)
}

func TestRowsToRegistryErrors(t *testing.T) {
	_, err := rowsToRegistry([][]interface{}{sheetHeader, {"K1", "", "soon"}})
	assert.Error(t, err)

	reg, err := rowsToRegistry([][]interface{}{sheetHeader, {}, {"", "x"}})
	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestSheetNameFromRange(t *testing.T) {
	assert.Equal(t, "Registry", sheetNameFromRange("Registry!A1"))
	assert.Equal(t, "Keys", sheetNameFromRange("Keys"))
	assert.Equal(t, "Registry", sheetNameFromRange(""))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	ch, err := Open(ctx, config.RegistryConfig{Channel: config.ChannelFile, FilePath: filepath.Join(t.TempDir(), "keys.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileChannel{}, ch)

	ch, err = Open(ctx, config.RegistryConfig{Channel: config.ChannelHTTP, URL: "https://example.com/keys.json"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPChannel{}, ch)

	ch, err = Open(ctx, config.RegistryConfig{Channel: config.ChannelGitHub, GitHub: config.GitHubConfig{Owner: "o", Repo: "r"}})
	require.NoError(t, err)
	assert.IsType(t, &GitHubChannel{}, ch)

	_, err = Open(ctx, config.RegistryConfig{Channel: config.ChannelFile})
	assert.Error(t, err)
	_, err = Open(ctx, config.RegistryConfig{Channel: config.ChannelHTTP})
	assert.Error(t, err)
	_, err = Open(ctx, config.RegistryConfig{Channel: "ftp"})
	assert.Error(t, err)
}

