// Package schema builds JSON schemas for structured LLM responses and
// validates the responses against them.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"

	"github.com/invopop/jsonschema"
)

// Reflect derives a response schema from a Go struct.
func Reflect[T any](name string) output.ResponseSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	s.ID = ""

	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("reflect schema %s: %v", name, err))
	}
	return output.ResponseSchema{Name: name, Schema: data}
}

var primitives = map[string]string{
	"str":    "string",
	"string": "string",
	"int":    "integer",
	"float":  "number",
	"bool":   "boolean",
}

// FromFormat builds an object schema from an extraction format such as
// {"name": "str", "tags": "list[str]", "rows": [{"id": "int"}], "owner": {"email": "str"}}.
// Type names come from a closed table; unknown names are configuration errors.
func FromFormat(name string, format map[string]any) (output.ResponseSchema, error) {
	node, err := objectSchema(format, name)
	if err != nil {
		return output.ResponseSchema{}, err
	}
	data, err := json.Marshal(node)
	if err != nil {
		return output.ResponseSchema{}, fmt.Errorf("marshal schema: %w", err)
	}
	return output.ResponseSchema{Name: name, Schema: data}, nil
}

func objectSchema(format map[string]any, path string) (map[string]any, error) {
	keys := make([]string, 0, len(format))
	for k := range format {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := make(map[string]any, len(format))
	for _, key := range keys {
		prop, err := valueSchema(format[key], path+"."+key)
		if err != nil {
			return nil, err
		}
		props[key] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}, nil
}

func valueSchema(v any, path string) (map[string]any, error) {
	switch t := v.(type) {
	case string:
		return typeName(t, path)
	case map[string]any:
		return objectSchema(t, path)
	case []any:
		if len(t) == 0 {
			return nil, entity.ConfigErrorf("%s: list type needs an element", path)
		}
		items, err := valueSchema(t[0], path+"[]")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	}
	return nil, entity.ConfigErrorf("%s: unsupported type descriptor %T", path, v)
}

func typeName(name, path string) (map[string]any, error) {
	n := strings.TrimSpace(name)
	if p, ok := primitives[n]; ok {
		return map[string]any{"type": p}, nil
	}
	lower := strings.ToLower(n)
	if strings.HasPrefix(lower, "list[") && strings.HasSuffix(lower, "]") {
		items, err := typeName(n[5:len(n)-1], path+"[]")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	}
	return nil, entity.ConfigErrorf("%s: unknown type %q", path, name)
}
