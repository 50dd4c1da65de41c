package prompts

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// Template pairs a fixed system prompt with a user prompt rendered from
// named variables.
type Template struct {
	Name   string
	System string
	user   prompts.PromptTemplate
}

func newTemplate(name, system, user string, vars ...string) Template {
	return Template{
		Name:   name,
		System: strings.TrimSpace(system),
		user:   prompts.NewPromptTemplate(user, vars),
	}
}

var (
	IndexPrediction = newTemplate("index_prediction", indexPredictionSystem, indexPredictionUser,
		"instruction", "title", "url", "axtree")
	SelectValue = newTemplate("select_value", selectValueSystem, selectValueUser,
		"options", "patterns")
	Extraction = newTemplate("extraction", extractionSystem, extractionUser,
		"instructions", "format", "axtree", "html")
)

// Render fills the user prompt. Every declared variable must be present.
func (t Template) Render(values map[string]any) (string, error) {
	for _, v := range t.user.InputVariables {
		if _, ok := values[v]; !ok {
			return "", fmt.Errorf("prompt %s: missing variable %q", t.Name, v)
		}
	}
	out, err := t.user.Format(values)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", t.Name, err)
	}
	return strings.TrimSpace(out), nil
}
