package sqlite

import (
	"fmt"
	"time"
)

// timeLayout is the canonical storage format for timestamp columns. Every
// bound timestamp goes through formatTime so stored values and query
// parameters compare correctly as strings; the modernc driver would otherwise
// bind a time.Time in Go's default String() form, which nothing can read back.
const timeLayout = "2006-01-02 15:04:05"

// formatTime renders a timestamp in the canonical storage format, in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored timestamp, tolerating the formats older rows may
// carry in addition to the canonical layout.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return formatTime(*v)
}
