package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/stevemurr/recipe-kv-server/schema"
)

var (
	nullableString  = map[string]any{"type": []string{"string", "null"}}
	nullableInteger = map[string]any{"type": []string{"integer", "null"}}
	stringList      = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
)

// recipeSchema is the shape a recipe body must have before it is bound to a
// Recipe. id, created_at and updated_at are assigned by the server, so they
// may be omitted.
var recipeSchema = map[string]any{
	"type": "object",
	"required": []string{
		"name", "ingredients", "instructions", "servings", "prep_time_mins",
		"cook_time_mins", "difficulty", "tags", "dietary_info",
	},
	"properties": map[string]any{
		"id":          map[string]any{"type": "string"},
		"name":        map[string]any{"type": "string"},
		"description": nullableString,
		"ingredients": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name", "amount", "unit", "optional"},
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"amount":   map[string]any{"type": "number"},
					"unit":     map[string]any{"type": "string"},
					"optional": map[string]any{"type": "boolean"},
					"notes":    nullableString,
				},
			},
		},
		"instructions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"order", "instruction"},
				"properties": map[string]any{
					"order":         map[string]any{"type": "integer"},
					"instruction":   map[string]any{"type": "string"},
					"duration_mins": nullableInteger,
				},
			},
		},
		"servings":       map[string]any{"type": "integer"},
		"prep_time_mins": map[string]any{"type": "integer"},
		"cook_time_mins": map[string]any{"type": "integer"},
		"difficulty":     map[string]any{"type": "string"},
		"tags":           stringList,
		"dietary_info":   stringList,
		"created_at":     map[string]any{"type": "integer"},
		"updated_at":     map[string]any{"type": "integer"},
	},
}

// Decode parses a recipe record. It is strict about JSON syntax and field
// shape but does no range or enum checks beyond what the Go types imply
// (servings must fit a uint8, times must be non-negative). All failures
// wrap ErrInvalidPayload.
//
// Keys bind by exact name: fields the schema does not name are dropped
// before binding, so "NAME" can neither shadow nor break "name".
func Decode(data []byte) (*Recipe, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrInvalidPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidPayload)
	}
	if err := schema.Validate(recipeSchema, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	known, err := json.Marshal(schema.Prune(recipeSchema, raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var r Recipe
	if err := json.Unmarshal(known, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &r, nil
}

// Encode serializes a recipe record. Optional fields are written as null.
func Encode(r *Recipe) ([]byte, error) {
	return marshal(r)
}

// marshal encodes v without HTML escaping and without a trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
