package table

import (
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"20060102",
}

// ParseTimestamps converts the named columns to timestamps in place. Columns
// that are absent are skipped. Empty strings become nil.
func ParseTimestamps(t *Table, columns ...string) error {
	if t == nil {
		return nil
	}
	for _, name := range columns {
		index := t.ColumnIndex(name)
		if index < 0 {
			continue
		}
		for r, row := range t.Rows {
			value, err := toTimestamp(row[index])
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", name, r, err)
			}
			row[index] = value
		}
		t.Columns[index].Type = Timestamp
	}
	return nil
}

func toTimestamp(value any) (any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return typed.UTC(), nil
	case []byte:
		return parseTimestamp(string(typed))
	case string:
		return parseTimestamp(typed)
	case int64:
		return time.Unix(typed, 0).UTC(), nil
	default:
		return nil, fmt.Errorf("cannot parse %T as timestamp", value)
	}
}

func parseTimestamp(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}
