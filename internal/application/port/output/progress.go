package output

import "context"

// ProgressPort reports run progress to a human operator.
type ProgressPort interface {
	ShowStep(ctx context.Context, step int, kind, detail string)
	ShowStepResult(ctx context.Context, step int, err error)
	ShowFallback(ctx context.Context, step int, reason string)
	ShowSummary(ctx context.Context, taskID string, status string, downloads []string)
}
