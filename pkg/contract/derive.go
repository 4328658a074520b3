package contract

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	byteSliceType  = reflect.TypeOf([]byte{})
)

// For derives a contract from the exported fields of struct type T.
//
// Field names follow `json` tags. A field is optional when it is a pointer, carries
// `omitempty`, or is tagged `contract:"optional"`; `contract:"required"` overrides both.
// A `desc` tag becomes the field description.
func For[T any]() (*Contract, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return forType(t)
}

// MustFor is For that panics on error. Use only for package-level contract values.
func MustFor[T any]() *Contract {
	c, err := For[T]()
	if err != nil {
		panic(err)
	}
	return c
}

// ForType derives a contract from a struct type or a pointer to one.
func ForType(t reflect.Type) (*Contract, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return forType(t)
}

func forType(t reflect.Type) (*Contract, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s - contract type must be a struct, got %s", logPrefix, t)
	}
	fields, err := structFields(t, map[reflect.Type]bool{t: true})
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, t.Name(), err)
	}
	return &Contract{Name: t.Name(), Fields: fields, goType: t}, nil
}

func structFields(t reflect.Type, seen map[reflect.Type]bool) ([]Field, error) {
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		jsonTag := sf.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(jsonTag, ",")

		if sf.Anonymous && name == "" {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				embedded, err := structFields(et, seen)
				if err != nil {
					return nil, err
				}
				fields = append(fields, embedded...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		f, err := fieldFor(name, sf.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		f.Required = sf.Type.Kind() != reflect.Pointer && !strings.Contains(opts, "omitempty")
		switch sf.Tag.Get("contract") {
		case "optional":
			f.Required = false
		case "required":
			f.Required = true
		}
		f.Description = sf.Tag.Get("desc")
		fields = append(fields, f)
	}
	return fields, nil
}

func fieldFor(name string, t reflect.Type, seen map[reflect.Type]bool) (Field, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	f := Field{Name: name}

	switch {
	case t == timeType:
		f.Kind = KindString
		return f, nil
	case t == rawMessageType:
		f.Kind = KindAny
		return f, nil
	case t == byteSliceType:
		f.Kind = KindString
		return f, nil
	}

	switch t.Kind() {
	case reflect.String:
		f.Kind = KindString
	case reflect.Bool:
		f.Kind = KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.Kind = KindInteger
	case reflect.Float32, reflect.Float64:
		f.Kind = KindNumber
	case reflect.Interface:
		f.Kind = KindAny
	case reflect.Map:
		f.Kind = KindObject
	case reflect.Struct:
		f.Kind = KindObject
		if seen[t] {
			// recursive type: stop describing nested fields
			return f, nil
		}
		seen[t] = true
		nested, err := structFields(t, seen)
		delete(seen, t)
		if err != nil {
			return f, err
		}
		f.Fields = nested
	case reflect.Slice, reflect.Array:
		f.Kind = KindArray
		elem, err := fieldFor("", t.Elem(), seen)
		if err != nil {
			return f, err
		}
		elem.Required = true
		f.Elem = &elem
	default:
		return f, fmt.Errorf("unsupported type %s", t)
	}
	return f, nil
}
