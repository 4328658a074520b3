package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// FieldError is one problem found while validating a payload.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// ValidationError lists every field of a payload that does not match a contract.
type ValidationError struct {
	Contract string       `json:"contract"`
	Problems []FieldError `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Field == "" {
			parts[i] = p.Problem
			continue
		}
		parts[i] = p.Field + ": " + p.Problem
	}
	return fmt.Sprintf("input does not match contract '%s': %s", e.Contract, strings.Join(parts, "; "))
}

// Fields returns the offending field paths.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Field)
	}
	return out
}

// Validate checks payload against the contract. Unknown keys are ignored; null counts
// as absent.
func (c *Contract) Validate(payload map[string]any) error {
	var problems []FieldError
	checkFields("", c.Fields, payload, &problems)
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Contract: c.Name, Problems: problems}
}

func checkFields(prefix string, fields []Field, obj map[string]any, problems *[]FieldError) {
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				*problems = append(*problems, FieldError{Field: path, Problem: "field required"})
			}
			continue
		}
		checkValue(path, f, v, problems)
	}
}

func checkValue(path string, f Field, v any, problems *[]FieldError) {
	mismatch := func() {
		*problems = append(*problems, FieldError{
			Field:   path,
			Problem: fmt.Sprintf("expected %s, got %s", f.Kind, typeName(v)),
		})
	}

	switch f.Kind {
	case KindAny, "":
	case KindString:
		if _, ok := v.(string); !ok {
			mismatch()
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			mismatch()
		}
	case KindNumber:
		if _, ok := toFloat(v); !ok {
			mismatch()
		}
	case KindInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
			mismatch()
		}
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			mismatch()
			return
		}
		if len(f.Fields) > 0 {
			checkFields(path, f.Fields, m, problems)
		}
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			mismatch()
			return
		}
		if f.Elem == nil {
			return
		}
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				if f.Elem.Required {
					*problems = append(*problems, FieldError{Field: itemPath, Problem: "null item"})
				}
				continue
			}
			checkValue(itemPath, *f.Elem, item, problems)
		}
	default:
		*problems = append(*problems, FieldError{Field: path, Problem: fmt.Sprintf("unknown kind %q", f.Kind)})
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32:
		return rv.Float(), true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// requiredNames returns the sorted names of required fields.
func requiredNames(fields []Field) []string {
	var out []string
	for _, f := range fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}
