package models

import (
	"bytes"
	"database/sql/driver"
	"fmt"
)

// Metadata is an open JSON document from upstream. It is stored and returned
// byte for byte and never inspected.
type Metadata []byte

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return []byte(m), nil
}

func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append(Metadata(nil), v...)
	case string:
		*m = Metadata(v)
	default:
		return fmt.Errorf("cannot convert %T to Metadata", value)
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return []byte(m), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	*m = append(Metadata(nil), data...)
	return nil
}
