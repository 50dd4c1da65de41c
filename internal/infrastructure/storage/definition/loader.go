// Package definition reads automation and task definitions from JSON or YAML
// files.
package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/browser/locator"

	"gopkg.in/yaml.v3"
)

// LoadAutomation reads and validates an automation file. YAML is converted to
// JSON first so both formats go through the same strict decoder.
func LoadAutomation(path string) (*entity.Automation, error) {
	raw, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	var a entity.Automation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := CheckCommands(&a); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

var placeholder = regexp.MustCompile(`\{[A-Za-z_]\w*\[(?:\d+|index)\]\}`)

// CheckCommands parses every locator command of a so that a malformed one
// fails before the run starts. Placeholders are checked as if they held "0".
func CheckCommands(a *entity.Automation) error {
	return a.CheckCommands(func(command string) error {
		_, err := locator.Parse(placeholder.ReplaceAllString(command, "0"))
		return err
	})
}

// LoadTask reads a task file in the same shape the HTTP service accepts.
func LoadTask(path string) (*entity.Task, error) {
	raw, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	var t entity.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if t.Automation != nil {
		if err := CheckCommands(t.Automation); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return &t, nil
}

func readJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	case ".json", "":
		return data, nil
	default:
		return nil, entity.ConfigErrorf("%s: unsupported definition format", path)
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, entity.ConfigErrorf("parse yaml: %v", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, entity.ConfigErrorf("yaml to json: %v", err)
	}
	return out, nil
}

// ParseInputs turns name=value pairs into input parameters. A repeated name
// appends to its list.
func ParseInputs(pairs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, entity.ConfigErrorf("input %q must look like name=value", p)
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}
