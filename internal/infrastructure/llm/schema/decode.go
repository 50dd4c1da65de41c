package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"optexity/internal/application/port/output"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const compiledCacheSize = 128

var compiled, _ = lru.New[string, *jsonschema.Schema](compiledCacheSize)

// Decode repairs a raw model answer into JSON and validates it against s.
func Decode(raw string, s output.ResponseSchema) (json.RawMessage, error) {
	text := stripFences(raw)
	if !json.Valid([]byte(text)) {
		repaired, err := jsonrepair.JSONRepair(text)
		if err != nil {
			return nil, fmt.Errorf("repair response: %w", err)
		}
		text = repaired
	}

	if len(s.Schema) == 0 {
		return json.RawMessage(text), nil
	}

	sch, err := compile(s)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema %s: %w", s.Name, err)
	}
	return json.RawMessage(text), nil
}

func compile(s output.ResponseSchema) (*jsonschema.Schema, error) {
	key := string(s.Schema)
	if sch, ok := compiled.Get(key); ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.Schema))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", s.Name, err)
	}
	url := "mem://" + safeName(s.Name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", s.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", s.Name, err)
	}
	compiled.Add(key, sch)
	return sch, nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func safeName(name string) string {
	if name == "" {
		return "response"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' || r == '#' {
			return '_'
		}
		return r
	}, name)
}
