package userinteraction

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterProgress(&buf)
	ctx := context.Background()

	p.ShowStep(ctx, 0, "interaction", "click get_by_role('button')")
	p.ShowStepResult(ctx, 0, nil)
	p.ShowFallback(ctx, 1, "locator not found")
	p.ShowStepResult(ctx, 1, errors.New("boom"))
	p.ShowSummary(ctx, "t-1", "failed", []string{"/tmp/report.csv"})

	out := buf.String()
	assert.Contains(t, out, "step 0: interaction")
	assert.Contains(t, out, "click get_by_role('button')")
	assert.Contains(t, out, "✓ step 0 done")
	assert.Contains(t, out, "step 1: asking the model (locator not found)")
	assert.Contains(t, out, "failed: boom")
	assert.Contains(t, out, "task t-1: failed")
	assert.Contains(t, out, "/tmp/report.csv")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b...", truncate("a\nb"+strings.Repeat("c", 20), 3))
}
