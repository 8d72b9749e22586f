package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	licenseErrors "axiscli/internal/errors"
	"axiscli/pkg/contracts/domain"
)

const testSpreadsheetID = "test-sheet"

// fakeSheet serves the subset of the Sheets values API the channel uses.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]interface{}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"+testSpreadsheetID+"/values/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          target,
			"majorDimension": "ROWS",
			"values":         f.rows,
		})

	case r.Method == http.MethodPost && strings.HasSuffix(target, ":clear"):
		f.rows = nil
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"spreadsheetId": testSpreadsheetID})

	case r.Method == http.MethodPut:
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ref := target[strings.Index(target, "!")+1:]
		if ref == "A1" {
			f.rows = body.Values
		} else {
			n, err := strconv.Atoi(strings.TrimPrefix(ref, "B"))
			if err != nil || n < 1 || n > len(f.rows) {
				http.Error(w, "bad range "+ref, http.StatusBadRequest)
				return
			}
			row := f.rows[n-1]
			for len(row) < 2 {
				row = append(row, "")
			}
			row[1] = body.Values[0][0]
			f.rows[n-1] = row
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"spreadsheetId": testSpreadsheetID})

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

// hwidCell returns the hwid cell of key's row.
func (f *fakeSheet) hwidCell(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if cell(row, 0) == key {
			return cell(row, 1)
		}
	}
	return ""
}

func newSheetsChannel(t *testing.T, now time.Time) (*SheetsChannel, *fakeSheet) {
	t.Helper()
	sheet := &fakeSheet{}
	srv := httptest.NewServer(sheet)
	t.Cleanup(srv.Close)

	ch, err := NewSheetsChannel(context.Background(), testSpreadsheetID, "Registry!A1", "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	ch.now = func() time.Time { return now }
	return ch, sheet
}

func TestSheetsChannelPublishFetch(t *testing.T) {
	ctx := context.Background()
	ch, _ := newSheetsChannel(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	doc, err := Marshal(sampleRegistry())
	require.NoError(t, err)
	require.NoError(t, ch.Publish(ctx, doc))

	got, err := ch.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(got))
}

func TestSheetsChannelBind(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	ch, sheet := newSheetsChannel(t, now)

	revokedAt := now.Add(-time.Hour)
	reg := domain.Registry{
		"FREE": {Key: "FREE", Expires: now.AddDate(0, 1, 0), Created: now},
		"REVK": {Key: "REVK", Expires: now.AddDate(0, 1, 0), Created: now, Revoked: true, RevokedAt: &revokedAt},
		"OLD":  {Key: "OLD", Expires: now.AddDate(0, 0, -1), Created: now.AddDate(0, -1, 0)},
	}
	doc, err := Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, ch.Publish(ctx, doc))

	assert.ErrorIs(t, ch.Bind(ctx, "REVK", "D9"), licenseErrors.ErrRevoked)
	assert.Empty(t, sheet.hwidCell("REVK"), "revoked rows are never written")
	assert.ErrorIs(t, ch.Bind(ctx, "OLD", "D9"), licenseErrors.ErrExpired)
	assert.Empty(t, sheet.hwidCell("OLD"))
	assert.ErrorIs(t, ch.Bind(ctx, "NOPE", "D9"), licenseErrors.ErrChannelUnavailable)

	require.NoError(t, ch.Bind(ctx, "FREE", "D1"))
	require.NoError(t, ch.Bind(ctx, "FREE", "D1"))
	assert.Equal(t, "D1", sheet.hwidCell("FREE"))
	assert.ErrorIs(t, ch.Bind(ctx, "FREE", "D2"), licenseErrors.ErrDeviceMismatch)

	t.Run("republish keeps the binding", func(t *testing.T) {
		require.NoError(t, ch.Publish(ctx, doc))
		assert.Equal(t, "D1", sheet.hwidCell("FREE"))
		assert.ErrorIs(t, ch.Bind(ctx, "FREE", "D2"), licenseErrors.ErrDeviceMismatch)

		fetched, err := ch.Fetch(ctx)
		require.NoError(t, err)
		got, err := Parse(fetched)
		require.NoError(t, err)
		assert.Equal(t, "D1", got["FREE"].BoundTo())
	})

	t.Run("hwid reset releases the binding", func(t *testing.T) {
		resetAt := now
		free := reg["FREE"]
		free.HWIDResetAt = &resetAt
		reset := domain.Registry{"FREE": free, "REVK": reg["REVK"], "OLD": reg["OLD"]}
		resetDoc, err := Marshal(reset)
		require.NoError(t, err)

		require.NoError(t, ch.Publish(ctx, resetDoc))
		assert.Empty(t, sheet.hwidCell("FREE"))
		require.NoError(t, ch.Bind(ctx, "FREE", "D2"))
		assert.Equal(t, "D2", sheet.hwidCell("FREE"))
	})
}
