package input

import (
	"context"

	"optexity/internal/domain/entity"
)

// AutomationRunner executes every node of an automation against one memory.
// Downloads and trace files go into ws.
type AutomationRunner interface {
	Run(ctx context.Context, automation *entity.Automation, mem *entity.Memory, ws entity.Workspace) error
}
