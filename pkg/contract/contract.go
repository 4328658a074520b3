// Package contract describes the shape of an action's input or output: a named set of typed
// fields, each required or optional. Input payloads are validated against a contract before
// a handler runs; output contracts only document the result shape.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

const logPrefix = "contract:contract"

// Kind is the JSON-level type of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindAny     Kind = "any"
)

// Field is one named, typed member of a contract or of a nested object.
type Field struct {
	Name        string  `json:"name"`
	Kind        Kind    `json:"kind"`
	Required    bool    `json:"required"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Elem        *Field  `json:"elem,omitempty"`
}

// Contract is a named set of fields, optionally backed by a Go type that validated
// payloads are decoded into.
type Contract struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`

	goType reflect.Type
}

// New builds a contract by hand. Payloads validated against it decode to map[string]any.
func New(name string, fields ...Field) *Contract {
	return &Contract{Name: name, Fields: fields}
}

// Required returns a required field of the given kind.
func Required(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind, Required: true}
}

// Optional returns an optional field of the given kind.
func Optional(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind}
}

// Empty is a contract with no fields.
func Empty(name string) *Contract {
	return &Contract{Name: name, Fields: []Field{}}
}

// GoType returns the Go type payloads decode into, or nil for hand-built contracts.
func (c *Contract) GoType() reflect.Type {
	return c.goType
}

// Field looks up a top-level field by name.
func (c *Contract) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Decode validates payload and converts it to the contract's Go type. The result is a
// pointer to a new value of that type, or the payload itself for hand-built contracts.
func (c *Contract) Decode(payload map[string]any) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err := c.Validate(payload); err != nil {
		return nil, err
	}
	if c.goType == nil {
		return payload, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload: %w", logPrefix, err)
	}
	target := reflect.New(c.goType)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(target.Interface()); err != nil {
		return nil, &ValidationError{
			Contract: c.Name,
			Problems: []FieldError{{Field: "", Problem: err.Error()}},
		}
	}
	return target.Interface(), nil
}
