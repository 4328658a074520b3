// Package format turns a raw action result into the text shown to a chat user and the
// structured payload returned alongside it.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const logPrefix = "format:format"

// ErrorCodeKey is the result field through which actions report business failures
// without raising. Formatters branch on it; the dispatcher does not.
const ErrorCodeKey = "error_code"

// Formatter renders a raw result. It must be pure: no I/O, no mutation of result.
type Formatter func(result map[string]any) (string, map[string]any, error)

// Default renders the result as indented JSON and returns it unchanged as the
// structured payload. The message is never empty.
func Default(result map[string]any) (string, map[string]any, error) {
	if result == nil {
		result = map[string]any{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("%s - failed to render result: %w", logPrefix, err)
	}
	return string(data), result, nil
}

// OrDefault returns f, or Default when f is nil.
func OrDefault(f Formatter) Formatter {
	if f == nil {
		return Default
	}
	return f
}

// ErrorCode reports the value of the result's error_code field. ok is false when the
// field is absent, null, zero, or an empty string.
func ErrorCode(result map[string]any) (code any, ok bool) {
	v, present := result[ErrorCodeKey]
	if !present || v == nil {
		return nil, false
	}
	switch c := v.(type) {
	case string:
		return c, c != ""
	case json.Number:
		f, err := c.Float64()
		return c, err != nil || f != 0
	case float64:
		return c, c != 0
	case int64:
		return c, c != 0
	case int:
		return c, c != 0
	case bool:
		return c, c
	}
	return v, true
}

// KeyValues renders a mapping as "Key: value" lines in the given key order. Keys missing
// from values are skipped; when order is empty the keys are sorted.
func KeyValues(values map[string]any, order ...string) string {
	if len(order) == 0 {
		for k := range values {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	var b strings.Builder
	for _, k := range order {
		v, ok := values[k]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, Scalar(v))
	}
	return b.String()
}

// Scalar renders a single JSON value for display. Strings are unquoted and whole
// numbers lose their fraction.
func Scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool, int, int64:
		return fmt.Sprint(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
