package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedPromptsLoaded(t *testing.T) {
	for _, tmpl := range []Template{IndexPrediction, SelectValue, Extraction} {
		assert.NotEmpty(t, tmpl.System, tmpl.Name)
	}
}

func TestIndexPrediction_Render(t *testing.T) {
	out, err := IndexPrediction.Render(map[string]any{
		"instruction": "Click the Login button",
		"title":       "Sign in",
		"url":         "https://example.com/login",
		"axtree":      "[0] textbox User ID\n[1] button Login",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Click the Login button")
	assert.Contains(t, out, "[1] button Login")
	assert.Contains(t, out, "Sign in (https://example.com/login)")
}

func TestIndexPrediction_MissingVariable(t *testing.T) {
	_, err := IndexPrediction.Render(map[string]any{"instruction": "x"})
	assert.ErrorContains(t, err, "missing variable")
}

func TestExtraction_RenderOptionalSections(t *testing.T) {
	out, err := Extraction.Render(map[string]any{
		"instructions": "",
		"format":       `{"total":"str"}`,
		"axtree":       "[0] text Total 42",
		"html":         "",
	})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(out, "Instructions"))
	assert.Contains(t, out, "Page elements:")
	assert.NotContains(t, out, "Page HTML:")
}

func TestSelectValue_Render(t *testing.T) {
	out, err := SelectValue.Render(map[string]any{
		"options":  "AAPL: Apple\nNVDA: Nvidia",
		"patterns": "apple",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "NVDA: Nvidia")
}
