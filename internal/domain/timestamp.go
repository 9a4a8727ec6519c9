package domain

import (
	"bytes"
	"fmt"
	"time"
)

// Timestamp is the canonical wire format for instants: an RFC 3339 string.
//
// Some backend serializers have historically emitted timestamps as a
// six-element integer array instead. That is a serialization defect to be
// fixed at the source, not a second supported format: an array here is a
// parse error with a message pointing at the offending payload.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses an RFC 3339 string and rejects everything else.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '[' {
		return fmt.Errorf("timestamp arrived as an array (%s): backend must emit RFC 3339 strings", data)
	}
	if data[0] != '"' {
		return fmt.Errorf("timestamp is not a JSON string: %s", data)
	}

	parsed, err := time.Parse(`"`+time.RFC3339+`"`, string(data))
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", data, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON emits the canonical RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}
