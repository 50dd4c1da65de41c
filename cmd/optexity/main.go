package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"optexity/internal/di"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/env"
	"optexity/internal/infrastructure/storage/definition"
	"optexity/internal/server"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "optexity",
		Short:         "Replay recorded browser automations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newServeCmd())
	return root
}

type runOptions struct {
	automation string
	taskFile   string
	inputs     []string
	unique     []string
	taskID     string
	saveDir    string
	maxRetries int
	headed     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one automation to completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.automation, "automation", "a", "", "automation definition (.json or .yaml)")
	f.StringVar(&opts.taskFile, "task", "", "task definition file, instead of --automation")
	f.StringArrayVarP(&opts.inputs, "input", "i", nil, "input parameter as name=value, repeatable")
	f.StringSliceVar(&opts.unique, "unique", nil, "input names that make up the dedup key")
	f.StringVar(&opts.taskID, "task-id", "", "task id (random when empty)")
	f.StringVar(&opts.saveDir, "save-dir", "", "directory for task logs and downloads")
	f.IntVar(&opts.maxRetries, "max-retries", 1, "task retries after a failed run")
	f.BoolVar(&opts.headed, "headed", false, "show the browser window")
	cmd.MarkFlagsMutuallyExclusive("automation", "task")
	cmd.MarkFlagsOneRequired("automation", "task")
	return cmd
}

func run(ctx context.Context, opts runOptions) error {
	task, err := loadTask(opts)
	if err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}

	cfg := containerConfig(env.NewEnvService())
	if opts.headed {
		cfg.BrowserHeadless = false
	}
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	container.Logger.Info("Task started", "task_id", task.TaskID, "automation", task.Automation.Name, "dir", task.TaskDirectory)
	if err := container.TaskExecutor.Execute(ctx, task); err != nil {
		return fmt.Errorf("task %s: %w", task.TaskID, err)
	}
	return nil
}

func loadTask(opts runOptions) (*entity.Task, error) {
	var task *entity.Task
	if opts.taskFile != "" {
		t, err := definition.LoadTask(opts.taskFile)
		if err != nil {
			return nil, err
		}
		task = t
	} else {
		automation, err := definition.LoadAutomation(opts.automation)
		if err != nil {
			return nil, err
		}
		inputs, err := definition.ParseInputs(opts.inputs)
		if err != nil {
			return nil, err
		}
		task = entity.NewTask(automation, inputs, opts.unique)
		task.MaxRetries = opts.maxRetries
	}
	if opts.taskID != "" {
		task.TaskID = opts.taskID
	}
	if opts.saveDir != "" {
		task.SaveDirectory = opts.saveDir
	}
	return task, nil
}

func newServeCmd() *cobra.Command {
	cfg := server.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept tasks over HTTP and run them one at a time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			envCfg := env.NewEnvService()
			container, err := di.NewContainer(ctx, containerConfig(envCfg))
			if err != nil {
				return err
			}
			defer container.Close()

			cfg.JSONAccessLog = envCfg.GetBool("ACCESS_LOG_JSON", false)
			srv := server.New(cfg, container.TaskExecutor, container.Logger, container.MetricsHandler)
			return srv.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.StringVar(&cfg.SaveDirectory, "save-dir", cfg.SaveDirectory, "default directory for task logs and downloads")
	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "maximum number of queued tasks")
	return cmd
}
