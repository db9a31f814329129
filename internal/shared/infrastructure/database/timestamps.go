package database

import (
	"database/sql"
	"time"
)

// TextTimeLayout is how timestamps are stored in SQLite TEXT columns. The
// fixed width keeps lexical and chronological order identical.
const TextTimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTextTime renders t for a TEXT column.
func FormatTextTime(t time.Time) string {
	return t.UTC().Format(TextTimeLayout)
}

// NullTextTime renders an optional timestamp for a TEXT column.
func NullTextTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTextTime(*t), Valid: true}
}

// ParseTextTime parses a value written by FormatTextTime. RFC 3339 values
// written by other tools are accepted as well.
func ParseTextTime(s string) (time.Time, error) {
	if t, err := time.Parse(TextTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseNullTextTime parses an optional TEXT timestamp.
func ParseNullTextTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTextTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
