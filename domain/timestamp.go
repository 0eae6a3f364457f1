package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DisplayLayout is how timestamps are rendered to clients, in server local time.
const DisplayLayout = "2006-01-02 15:04:05"

var storeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp scans the store's DATETIME/TIMESTAMP values regardless of whether the driver
// hands back a time.Time or the raw text SQLite keeps for CURRENT_TIMESTAMP.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range storeLayouts {
		// SQLite CURRENT_TIMESTAMP is UTC without a zone marker.
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unable to parse timestamp %q", s)
}

func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC(), nil
}

// String renders the timestamp in local time.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DisplayLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.String() + `"`), nil
}
