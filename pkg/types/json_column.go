package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// JSONColumn stores raw JSON in a jsonb (or TEXT, under the sqlite test
// harness) column without forcing a decode on load. The bytes pass through
// marshaling untouched.
type JSONColumn []byte

// Value serializes the column for storage. Empty means SQL NULL.
func (j JSONColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan accepts the byte and string forms drivers hand back for JSON columns.
func (j *JSONColumn) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONColumn(v)
	default:
		return fmt.Errorf("unsupported json column source %T", value)
	}
	return nil
}

// MarshalJSON emits the stored bytes verbatim.
func (j JSONColumn) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON keeps the raw bytes.
func (j *JSONColumn) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("json column: unmarshal into nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}
