package output

import (
	"context"

	"optexity/internal/domain/entity"
)

// TraceStore persists the executed nodes and the memory after every step.
type TraceStore interface {
	Save(ctx context.Context, dir string, executed []*entity.ActionNode, mem *entity.Memory) error
}
