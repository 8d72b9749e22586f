package exporter

import (
	"strconv"
	"time"

	"axiscli/pkg/contracts/domain"
)

// dateLayout is used for every timestamp cell
const dateLayout = "2006-01-02 15:04:05Z07:00"

// Columns is the header row of every export
var Columns = []string{
	"Key",
	"Status",
	"Created",
	"Expires",
	"Days Left",
	"HWID",
	"Revoked At",
	"HWID Reset At",
}

// recordRow renders rec as one export row, evaluated at now
func recordRow(rec domain.KeyRecord, now time.Time) []string {
	return []string{
		rec.Key,
		string(rec.Status(now)),
		formatTime(rec.Created),
		formatTime(rec.Expires),
		strconv.Itoa(daysLeft(rec, now)),
		rec.BoundTo(),
		formatOptionalTime(rec.RevokedAt),
		formatOptionalTime(rec.HWIDResetAt),
	}
}

func daysLeft(rec domain.KeyRecord, now time.Time) int {
	if rec.Revoked || rec.Expired(now) {
		return 0
	}
	return int(rec.Expires.Sub(now).Hours() / 24)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
