package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKey holds a non-object result once it has been wrapped by ToMap.
const ValueKey = "value"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeNumbers deserializes JSON bytes into the given target, keeping numbers inside
// untyped values as json.Number so integers beyond 2^53 survive.
func DecodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ToMap converts any JSON-serializable value into a plain JSON object.
// Null becomes an empty object; scalars and arrays are wrapped under ValueKey.
// Maps are round-tripped too, so a value JSON cannot encode (NaN, a func) is an error here
// rather than when the reply is written.
func ToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("commsutil:codec - result is not serializable: %w", err)
	}
	var decoded interface{}
	if err := DecodeNumbers(data, &decoded); err != nil {
		return nil, fmt.Errorf("commsutil:codec - result is not serializable: %w", err)
	}
	switch out := decoded.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return out, nil
	default:
		return map[string]interface{}{ValueKey: out}, nil
	}
}
