package userinteraction

import (
	"context"
	"io"
	"os"
	"strings"

	"optexity/internal/application/port/output"

	"github.com/fatih/color"
)

var _ output.ProgressPort = (*ConsoleProgress)(nil)

// ConsoleProgress prints run progress for an operator watching the terminal.
type ConsoleProgress struct {
	out io.Writer
}

func NewConsoleProgress() *ConsoleProgress {
	return &ConsoleProgress{out: color.Output}
}

// NewWriterProgress writes to w instead of the color-aware stdout.
func NewWriterProgress(w io.Writer) *ConsoleProgress {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleProgress{out: w}
}

var kindIcons = map[string]string{
	"interaction": "🖱️",
	"extraction":  "🔍",
	"assertion":   "✔️",
	"script":      "📜",
	"two_factor":  "🔐",
}

func (c *ConsoleProgress) ShowStep(ctx context.Context, step int, kind, detail string) {
	icon, ok := kindIcons[kind]
	if !ok {
		icon = "🔧"
	}
	color.New(color.FgYellow, color.Bold).Fprintf(c.out, "\n%s step %d: %s\n", icon, step, kind)
	if detail != "" {
		color.New(color.Faint).Fprintf(c.out, "   %s\n", truncate(detail, 100))
	}
}

func (c *ConsoleProgress) ShowStepResult(ctx context.Context, step int, err error) {
	if err != nil {
		color.New(color.FgRed).Fprint(c.out, "❌ failed: ")
		color.New(color.Faint).Fprintln(c.out, truncate(err.Error(), 300))
		return
	}
	color.New(color.FgGreen).Fprintf(c.out, "✓ step %d done\n", step)
}

func (c *ConsoleProgress) ShowFallback(ctx context.Context, step int, reason string) {
	color.New(color.FgBlue).Fprintf(c.out, "💭 step %d: asking the model (%s)\n", step, truncate(reason, 120))
}

func (c *ConsoleProgress) ShowSummary(ctx context.Context, taskID string, status string, downloads []string) {
	head := color.New(color.FgCyan, color.Bold)
	if status != "success" {
		head = color.New(color.FgRed, color.Bold)
	}
	head.Fprintf(c.out, "\n━━━ task %s: %s ━━━\n", taskID, status)
	for _, d := range downloads {
		color.New(color.Faint).Fprintf(c.out, "   ⬇️  %s\n", d)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
