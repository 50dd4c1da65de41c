package entity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusAllocated TaskStatus = "allocated"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

const DefaultSaveDirectory = "/tmp/optexity"

type Task struct {
	TaskID               string              `json:"task_id"`
	UserID               string              `json:"user_id,omitempty"`
	RecordingID          string              `json:"recording_id,omitempty"`
	Automation           *Automation         `json:"automation"`
	InputParameters      map[string][]string `json:"input_parameters"`
	UniqueParameterNames []string            `json:"unique_parameter_names"`
	UniqueParameters     map[string][]string `json:"unique_parameters,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Status      TaskStatus `json:"status"`

	SaveDirectory          string `json:"save_directory,omitempty"`
	TaskDirectory          string `json:"task_directory,omitempty"`
	LogsDirectory          string `json:"logs_directory,omitempty"`
	DownloadsDirectory     string `json:"downloads_directory,omitempty"`
	TempDownloadsDirectory string `json:"temp_downloads_directory,omitempty"`
	LogFilePath            string `json:"log_file_path,omitempty"`

	DedupKey   string `json:"dedup_key,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// NewTask builds a queued task with a fresh id.
func NewTask(automation *Automation, input map[string][]string, uniqueNames []string) *Task {
	return &Task{
		TaskID:               uuid.NewString(),
		Automation:           automation,
		InputParameters:      input,
		UniqueParameterNames: uniqueNames,
		CreatedAt:            time.Now().UTC(),
		Status:               TaskStatusQueued,
		MaxRetries:           1,
	}
}

// Validate computes the dedup key and derived paths and creates the task
// directories on disk.
func (t *Task) Validate() error {
	if t.TaskID == "" {
		return configErrorf("task_id is required")
	}
	if t.Automation == nil {
		return configErrorf("task %s has no automation", t.TaskID)
	}
	if err := t.Automation.Validate(); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = TaskStatusQueued
	}
	if t.MaxRetries < 0 {
		return configErrorf("max_retries must not be negative")
	}

	if len(t.UniqueParameterNames) > 0 {
		t.UniqueParameters = make(map[string][]string, len(t.UniqueParameterNames))
		for _, name := range t.UniqueParameterNames {
			values, ok := t.InputParameters[name]
			if !ok {
				return configErrorf("unique parameter %q is not an input parameter", name)
			}
			t.UniqueParameters[name] = values
		}
		// encoding/json writes map keys in sorted order.
		key, err := json.Marshal(t.UniqueParameters)
		if err != nil {
			return fmt.Errorf("dedup key: %w", err)
		}
		t.DedupKey = string(key)
	} else if t.DedupKey == "" {
		t.DedupKey = uuid.NewString()
	}

	if t.SaveDirectory == "" {
		t.SaveDirectory = DefaultSaveDirectory
	}
	t.TaskDirectory = filepath.Join(t.SaveDirectory, t.TaskID)
	t.LogsDirectory = filepath.Join(t.TaskDirectory, "logs")
	t.DownloadsDirectory = filepath.Join(t.TaskDirectory, "downloads")
	t.TempDownloadsDirectory = filepath.Join(t.TaskDirectory, "temp_downloads")
	t.LogFilePath = filepath.Join(t.LogsDirectory, "optexity.log")

	for _, dir := range []string{t.LogsDirectory, t.DownloadsDirectory, t.TempDownloadsDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (t *Task) MarkAllocated(now time.Time) {
	t.Status = TaskStatusAllocated
	t.AllocatedAt = &now
}

func (t *Task) MarkRunning(now time.Time) {
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

func (t *Task) MarkCompleted(now time.Time, err error) {
	t.CompletedAt = &now
	if err != nil {
		t.Status = TaskStatusFailed
		t.Error = err.Error()
		return
	}
	t.Status = TaskStatusSuccess
	t.Error = ""
}

// Workspace is the set of task directories a run writes into.
type Workspace struct {
	LogsDirectory          string
	DownloadsDirectory     string
	TempDownloadsDirectory string
}

func (t *Task) Workspace() Workspace {
	return Workspace{
		LogsDirectory:          t.LogsDirectory,
		DownloadsDirectory:     t.DownloadsDirectory,
		TempDownloadsDirectory: t.TempDownloadsDirectory,
	}
}
