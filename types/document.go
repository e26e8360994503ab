package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is a schemaless JSON value stored verbatim in a text column.
// A nil Document is stored as NULL.
type Document json.RawMessage

// NewDocument returns nil for empty input and JSON null so absent values are
// stored as NULL.
func NewDocument(raw json.RawMessage) Document {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return Document(append([]byte(nil), trimmed...))
}

// MarshalJSON emits the stored document, or null when empty.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("types.Document: UnmarshalJSON on nil pointer")
	}
	*d = NewDocument(data)
	return nil
}

// Value implements driver.Valuer.
func (d Document) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	if !json.Valid(d) {
		return nil, fmt.Errorf("types.Document: invalid JSON")
	}
	return string(d), nil
}

// Scan implements sql.Scanner.
func (d *Document) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = NewDocument(v)
	case string:
		*d = NewDocument([]byte(v))
	default:
		return fmt.Errorf("types.Document: cannot scan %T", src)
	}
	return nil
}
