package input

import (
	"context"

	"optexity/internal/domain/entity"
)

type TaskExecutor interface {
	Execute(ctx context.Context, task *entity.Task) error
}
