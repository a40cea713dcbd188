package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a result value as written in the source. Extractors emit it as
// either a JSON string or a JSON number; both decode to the literal text so
// "7.10" is never rewritten to "7.1".
type Value string

func (v Value) String() string { return string(v) }

// MarshalJSON always emits a string.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(v))
}

// UnmarshalJSON accepts a string, a number, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("result value must be a string or number: %w", err)
		}
		*v = Value(n.String())
		return nil
	}
}
