package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// sqliteTimeLayout sorts lexically, so range predicates work on SQLite text columns.
const sqliteTimeLayout = "2006-01-02 15:04:05Z07:00"

// TimeArg normalizes t for storage: UTC, whole seconds.
func TimeArg(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Time scans timestamp columns from either backend into a UTC time.Time.
type Time struct {
	dst *time.Time
}

// ScanTime returns a scanner writing into dst.
func ScanTime(dst *time.Time) *Time {
	return &Time{dst: dst}
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t.dst = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		*t.dst = time.Unix(v, 0).UTC()
		return nil
	case nil:
		*t.dst = time.Time{}
		return nil
	default:
		return fmt.Errorf("db: cannot scan %T into time", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, "2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t.dst = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("db: cannot parse time %q", s)
}

// SQLiteTime is a driver.Valuer storing times in a lexically ordered text layout.
type SQLiteTime time.Time

// Value implements driver.Valuer.
func (t SQLiteTime) Value() (driver.Value, error) {
	return TimeArg(time.Time(t)).Format(sqliteTimeLayout), nil
}

// Arg returns t in the representation the dialect compares correctly.
func (d Dialect) Arg(t time.Time) any {
	if d == SQLite {
		return SQLiteTime(t)
	}
	return TimeArg(t)
}
