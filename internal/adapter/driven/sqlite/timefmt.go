package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// sqliteTimeLayout matches CURRENT_TIMESTAMP so stored values compare
// correctly against it as text.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// formatTime renders t in UTC in the CURRENT_TIMESTAMP layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// nullTime converts an optional time to a nullable column value.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseNullTime is the inverse of nullTime.
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		sqliteTimeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
