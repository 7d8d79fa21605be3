// Package schema provides shape validation for decoded JSON documents.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Validate checks a decoded JSON value against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil. Numbers may be
// float64 or json.Number (decoder with UseNumber).
//
// Supported JSON Schema keywords:
//   - type, as a single name or a list of names
//     (string, number, integer, boolean, object, array, null)
//   - properties, required
//   - items (for arrays)
func Validate(schema map[string]any, doc any) error {
	if schema == nil {
		return nil
	}
	return validateValue(schema, doc, "$")
}

func validateValue(schema map[string]any, value any, path string) error {
	if t, ok := schema["type"]; ok {
		if err := checkType(typeNames(t), value, path); err != nil {
			return err
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return validateObject(schema, v, path)
	case []any:
		return validateArray(schema, v, path)
	}
	return nil
}

func typeNames(t any) []string {
	switch v := t.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		names := make([]string, 0, len(v))
		for _, n := range v {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

func checkType(expected []string, value any, path string) error {
	if len(expected) == 0 {
		return nil
	}
	actual := jsonType(value)
	for _, e := range expected {
		switch {
		case e == actual:
			return nil
		case e == "number" && actual == "integer":
			return nil
		}
	}
	want := expected[0]
	if len(expected) > 1 {
		want = strings.Join(expected, "|")
	}
	return fmt.Errorf("%s: expected type %q, got %q", path, want, actual)
}

// jsonType reports "integer" for whole numbers so that checkType can
// accept them where "number" is allowed.
func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch n := v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if n == float64(int64(n)) {
			return "integer"
		}
		return "number"
	case json.Number:
		if !strings.ContainsAny(string(n), ".eE") {
			return "integer"
		}
		return "number"
	case int, int64, uint64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func validateObject(schema map[string]any, obj map[string]any, path string) error {
	for _, field := range stringList(schema["required"]) {
		if _, exists := obj[field]; !exists {
			return fmt.Errorf("%s: missing required field %q", path, field)
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for field, propSchema := range props {
		val, exists := obj[field]
		if !exists {
			continue
		}
		ps, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(ps, val, path+"."+field); err != nil {
			return err
		}
	}
	return nil
}

func validateArray(schema map[string]any, arr []any, path string) error {
	itemSchema, ok := schema["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, elem := range arr {
		if err := validateValue(itemSchema, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, r := range l {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Prune removes, in place, every object key that the schema's properties do
// not name, recursing through properties and items. It returns doc. Keys are
// matched exactly, so after pruning only validated fields remain.
func Prune(schema map[string]any, doc any) any {
	if schema == nil {
		return doc
	}
	switch v := doc.(type) {
	case map[string]any:
		props, ok := schema["properties"].(map[string]any)
		if !ok {
			return v
		}
		for field, val := range v {
			ps, known := props[field]
			if !known {
				delete(v, field)
				continue
			}
			if sub, ok := ps.(map[string]any); ok {
				v[field] = Prune(sub, val)
			}
		}
	case []any:
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, elem := range v {
				v[i] = Prune(itemSchema, elem)
			}
		}
	}
	return doc
}
