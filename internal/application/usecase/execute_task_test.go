package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/infrastructure/metrics"
	"optexity/internal/testutil"
)

type scriptedRunner struct {
	errs     []error
	logLine  string
	memories []*entity.Memory
	ws       entity.Workspace
}

func (r *scriptedRunner) Run(ctx context.Context, _ *entity.Automation, mem *entity.Memory, ws entity.Workspace) error {
	if r.logLine != "" {
		output.LoggerFromContext(ctx, logger.NewNop()).Info(r.logLine)
	}
	r.memories = append(r.memories, mem)
	r.ws = ws
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func newTask(t *testing.T, maxRetries int) *entity.Task {
	t.Helper()
	automation := &entity.Automation{
		Name: "login",
		URL:  "https://example.com",
		Nodes: []entity.Node{&entity.ActionNode{
			InteractionAction: &entity.InteractionAction{GoBack: &entity.GoBackAction{}},
		}},
	}
	task := entity.NewTask(automation, map[string][]string{"user": {"alice"}}, nil)
	task.MaxRetries = maxRetries
	task.SaveDirectory = t.TempDir()
	require.NoError(t, task.Validate())
	return task
}

func newUseCase(browser *testutil.Browser, runner *scriptedRunner, progress *testutil.Progress) *ExecuteTaskUseCase {
	return NewExecuteTaskUseCase(browser, runner, progress, logger.NewNop(), metrics.Nop{}, nil)
}

func TestExecute_Success(t *testing.T) {
	browser := testutil.NewBrowser("about:blank")
	runner := &scriptedRunner{}
	progress := &testutil.Progress{}
	task := newTask(t, 1)

	require.NoError(t, newUseCase(browser, runner, progress).Execute(context.Background(), task))

	assert.Equal(t, entity.TaskStatusSuccess, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.CompletedAt)
	assert.Equal(t, []string{"https://example.com"}, browser.Navigations)
	assert.Equal(t, task.TempDownloadsDirectory, browser.DownloadDir)
	assert.Equal(t, task.LogsDirectory, runner.ws.LogsDirectory)
	assert.Equal(t, []string{"alice"}, runner.memories[0].Variables.InputVariables["user"])
	assert.Contains(t, progress.Events, "summary "+task.TaskID+" success 0")
}

func TestExecute_RetriesWithFreshMemory(t *testing.T) {
	runner := &scriptedRunner{errs: []error{errors.New("flaky")}}
	task := newTask(t, 1)

	require.NoError(t, newUseCase(testutil.NewBrowser(""), runner, &testutil.Progress{}).Execute(context.Background(), task))

	assert.Equal(t, 1, task.RetryCount)
	require.Len(t, runner.memories, 2)
	assert.NotSame(t, runner.memories[0], runner.memories[1])
	assert.Equal(t, entity.TaskStatusSuccess, task.Status)
}

func TestExecute_FailsAfterRetries(t *testing.T) {
	boom := errors.New("still broken")
	runner := &scriptedRunner{errs: []error{boom, boom, boom}}
	task := newTask(t, 2)

	err := newUseCase(testutil.NewBrowser(""), runner, &testutil.Progress{}).Execute(context.Background(), task)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, task.RetryCount)
	assert.Len(t, runner.memories, 3)
	assert.Equal(t, entity.TaskStatusFailed, task.Status)
	assert.Equal(t, "still broken", task.Error)
}

func TestExecute_ConfigurationErrorNotRetried(t *testing.T) {
	runner := &scriptedRunner{errs: []error{entity.ConfigErrorf("bad loop")}}
	task := newTask(t, 3)

	err := newUseCase(testutil.NewBrowser(""), runner, &testutil.Progress{}).Execute(context.Background(), task)

	assert.ErrorIs(t, err, entity.ErrConfiguration)
	assert.Zero(t, task.RetryCount)
	assert.Len(t, runner.memories, 1)
}

func TestExecute_RunLogsGoToTaskLogFile(t *testing.T) {
	runner := &scriptedRunner{logLine: "Running node"}
	task := newTask(t, 0)
	taskLogger := func(task *entity.Task) (output.LoggerPort, error) {
		cfg := logger.DefaultConfig()
		cfg.Console = io.Discard
		cfg.FilePath = task.LogFilePath
		return logger.NewLoggerAdapter(cfg)
	}
	uc := NewExecuteTaskUseCase(testutil.NewBrowser(""), runner, &testutil.Progress{}, logger.NewNop(), metrics.Nop{}, taskLogger)

	require.NoError(t, uc.Execute(context.Background(), task))

	data, err := os.ReadFile(task.LogFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Running node")
	assert.Contains(t, string(data), `"task_id":"`+task.TaskID+`"`)
	assert.Contains(t, string(data), "Task completed")
}
