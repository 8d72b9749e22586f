package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	licenseErrors "axiscli/internal/errors"
	"axiscli/pkg/contracts/domain"
)

// sheetHeader is the first row of the registry sheet.
// Format: Key | HWID | Expires | Revoked | Created | RevokedAt | HWIDResetAt
var sheetHeader = []interface{}{"key", "hwid", "expires", "revoked", "created", "revoked_at", "hwid_reset_at"}

// SheetsChannel mirrors the registry into a Google Sheets tab, one row per
// key. It also accepts first-use bindings by filling in the hwid cell; those
// survive later publishes until the key's hwid is reset.
type SheetsChannel struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

// NewSheetsChannel creates a channel authenticated with a service account
// credentials file.
func NewSheetsChannel(ctx context.Context, spreadsheetID, sheetRange, credentialsFile string, opts ...option.ClientOption) (*SheetsChannel, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	if credentialsFile != "" {
		credentialsJSON, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsChannel{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetNameFromRange(sheetRange),
		now:           time.Now,
	}, nil
}

func sheetNameFromRange(r string) string {
	if idx := strings.Index(r, "!"); idx >= 0 {
		r = r[:idx]
	}
	if r == "" {
		return "Registry"
	}
	return r
}

// Fetch reads the sheet and returns it as an aggregate registry document.
func (c *SheetsChannel) Fetch(ctx context.Context) ([]byte, error) {
	rows, err := c.readRows(ctx, "fetch")
	if err != nil {
		return nil, err
	}

	reg, err := rowsToRegistry(rows)
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	return Marshal(reg)
}

func (c *SheetsChannel) readRows(ctx context.Context, op string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName).Context(ctx).Do()
	if err != nil {
		return nil, unavailable(op, fmt.Errorf("failed to read from sheets: %v", err))
	}
	return resp.Values, nil
}

// Publish rewrites the sheet from document. Bindings recorded in the sheet
// for keys the document still has unbound, with the same hwid reset time,
// are kept.
func (c *SheetsChannel) Publish(ctx context.Context, document []byte) error {
	reg, err := Parse(document)
	if err != nil {
		return err
	}

	rows, err := c.readRows(ctx, "publish")
	if err != nil {
		return err
	}
	current, err := rowsToRegistry(rows)
	if err != nil {
		return unavailable("publish", err)
	}
	reg = MergeBindings(reg, current)

	_, err = c.service.Spreadsheets.Values.Clear(c.spreadsheetID, c.sheetName, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return unavailable("publish", fmt.Errorf("failed to clear sheet: %v", err))
	}

	valueRange := &sheets.ValueRange{Values: registryToRows(reg)}
	_, err = c.service.Spreadsheets.Values.Update(
		c.spreadsheetID,
		c.sheetName+"!A1",
		valueRange,
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return unavailable("publish", fmt.Errorf("failed to write sheet: %v", err))
	}
	return nil
}

// Bind fills the hwid cell of key's row. Revoked and expired keys are
// refused, and a row already holding a different hwid is a device mismatch.
func (c *SheetsChannel) Bind(ctx context.Context, key, hwid string) error {
	rows, err := c.readRows(ctx, "bind")
	if err != nil {
		return err
	}

	rowIndex := -1
	for i, row := range rows {
		if i == 0 && cell(row, 0) == "key" {
			continue
		}
		if cell(row, 0) != key {
			continue
		}

		rec, err := rowToRecord(row, i)
		if err != nil {
			return unavailable("bind", err)
		}
		if rec.Revoked {
			return licenseErrors.ErrRevoked
		}
		if rec.Expired(c.now()) {
			return licenseErrors.ErrExpired
		}
		if rec.Bound() {
			if rec.BoundTo() != hwid {
				return licenseErrors.ErrDeviceMismatch
			}
			return nil
		}
		rowIndex = i + 1 // sheets rows are 1-based
		break
	}
	if rowIndex == -1 {
		return unavailable("bind", errors.New("key not present in sheet"))
	}

	rangeStr := fmt.Sprintf("%s!B%d", c.sheetName, rowIndex)
	_, err = c.service.Spreadsheets.Values.Update(
		c.spreadsheetID,
		rangeStr,
		&sheets.ValueRange{Values: [][]interface{}{{hwid}}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return unavailable("bind", fmt.Errorf("failed to update sheet: %v", err))
	}
	return nil
}

func registryToRows(reg domain.Registry) [][]interface{} {
	rows := make([][]interface{}, 0, len(reg)+1)
	rows = append(rows, sheetHeader)
	for _, key := range reg.Keys() {
		rec := reg[key]
		hwid := ""
		if rec.HWID != nil {
			hwid = *rec.HWID
		}
		rows = append(rows, []interface{}{
			rec.Key,
			hwid,
			rec.Expires.UTC().Format(time.RFC3339Nano),
			strconv.FormatBool(rec.Revoked),
			rec.Created.UTC().Format(time.RFC3339Nano),
			formatOptionalTime(rec.RevokedAt),
			formatOptionalTime(rec.HWIDResetAt),
		})
	}
	return rows
}

func rowsToRegistry(rows [][]interface{}) (domain.Registry, error) {
	reg := domain.Registry{}
	for i, row := range rows {
		if i == 0 && cell(row, 0) == "key" {
			continue
		}
		if cell(row, 0) == "" {
			continue
		}
		rec, err := rowToRecord(row, i)
		if err != nil {
			return nil, err
		}
		reg[rec.Key] = rec
	}
	return reg, nil
}

func rowToRecord(row []interface{}, index int) (domain.KeyRecord, error) {
	rec := domain.KeyRecord{Key: cell(row, 0)}
	if hwid := cell(row, 1); hwid != "" {
		rec.HWID = &hwid
	}

	var err error
	if rec.Expires, err = time.Parse(time.RFC3339Nano, cell(row, 2)); err != nil {
		return domain.KeyRecord{}, fmt.Errorf("row %d: bad expires: %w", index+1, err)
	}
	rec.Revoked, _ = strconv.ParseBool(cell(row, 3))
	if created := cell(row, 4); created != "" {
		if rec.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return domain.KeyRecord{}, fmt.Errorf("row %d: bad created: %w", index+1, err)
		}
	}
	rec.RevokedAt = parseOptionalTime(cell(row, 5))
	rec.HWIDResetAt = parseOptionalTime(cell(row, 6))
	return rec, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
