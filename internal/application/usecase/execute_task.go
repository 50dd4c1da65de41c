package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optexity/internal/application/port/input"
	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var _ input.TaskExecutor = (*ExecuteTaskUseCase)(nil)

// TaskLoggerFactory opens a logger writing to the task's own log file.
type TaskLoggerFactory func(task *entity.Task) (output.LoggerPort, error)

type ExecuteTaskUseCase struct {
	browser    output.BrowserPort
	runner     input.AutomationRunner
	progress   output.ProgressPort
	logger     output.LoggerPort
	metrics    output.MetricsPort
	taskLogger TaskLoggerFactory
	now        func() time.Time
}

func NewExecuteTaskUseCase(
	browser output.BrowserPort,
	runner input.AutomationRunner,
	progress output.ProgressPort,
	logger output.LoggerPort,
	metrics output.MetricsPort,
	taskLogger TaskLoggerFactory,
) *ExecuteTaskUseCase {
	return &ExecuteTaskUseCase{
		browser:    browser,
		runner:     runner,
		progress:   progress,
		logger:     logger,
		metrics:    metrics,
		taskLogger: taskLogger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the task's automation, retrying with a fresh memory while
// retry_count < max_retries. Configuration errors are never retried. The
// task logger travels in ctx so every component of the run writes to it.
func (uc *ExecuteTaskUseCase) Execute(ctx context.Context, task *entity.Task) error {
	log := uc.logger.WithField("task_id", task.TaskID)
	if uc.taskLogger != nil {
		if tl, err := uc.taskLogger(task); err != nil {
			log.Warn("Cannot open task log file", "path", task.LogFilePath, "error", err)
		} else {
			defer tl.Close()
			log = tl.WithField("task_id", task.TaskID)
		}
	}
	ctx = output.ContextWithLogger(ctx, log)

	task.MarkRunning(uc.now())
	log.Info("Task started", "automation", task.Automation.Name, "max_retries", task.MaxRetries)

	var (
		mem *entity.Memory
		err error
	)
	for {
		mem = entity.NewMemory(task.InputParameters)
		err = uc.attempt(ctx, task, mem)
		if err == nil || !retryable(ctx, err) || task.RetryCount >= task.MaxRetries {
			break
		}
		task.RetryCount++
		log.Warn("Task attempt failed, retrying", "retry", task.RetryCount, "error", err)
	}

	task.MarkCompleted(uc.now(), err)
	uc.metrics.IncTask(task.Status)
	uc.progress.ShowSummary(ctx, task.TaskID, string(task.Status), mem.DownloadPaths())

	if err != nil {
		log.Error("Task failed", "error", err, "retries", task.RetryCount)
		return err
	}
	log.Info("Task completed",
		"downloads", len(mem.DownloadPaths()),
		"total_tokens", mem.TokenUsage.TotalTokens,
		"duration", task.CompletedAt.Sub(*task.StartedAt),
	)
	return nil
}

func (uc *ExecuteTaskUseCase) attempt(ctx context.Context, task *entity.Task, mem *entity.Memory) error {
	ws := task.Workspace()
	if err := uc.browser.SetDownloadDirectory(ctx, ws.TempDownloadsDirectory); err != nil {
		return fmt.Errorf("set download directory: %w", err)
	}
	if task.Automation.URL != "" {
		if err := uc.browser.Navigate(ctx, task.Automation.URL); err != nil {
			return fmt.Errorf("open %s: %w", task.Automation.URL, err)
		}
	}
	return uc.runner.Run(ctx, task.Automation, mem, ws)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, entity.ErrConfiguration)
}
