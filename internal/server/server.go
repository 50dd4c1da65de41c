// Package server exposes the task queue over HTTP and runs queued tasks one
// at a time.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"optexity/internal/application/port/input"
	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/storage/definition"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"golang.org/x/sync/errgroup"
)

var ErrQueueFull = errors.New("task queue is full")

type Config struct {
	Addr          string
	SaveDirectory string
	QueueSize     int
	// ShutdownTimeout bounds the graceful HTTP shutdown.
	ShutdownTimeout time.Duration
	JSONAccessLog   bool
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8001",
		SaveDirectory:   entity.DefaultSaveDirectory,
		QueueSize:       1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

type Server struct {
	cfg      Config
	executor input.TaskExecutor
	logger   output.LoggerPort
	metrics  http.Handler

	queue   chan *entity.Task
	running atomic.Bool
	now     func() time.Time
}

// New builds a server. metrics may be nil, in which case /metrics is not mounted.
func New(cfg Config, executor input.TaskExecutor, logger output.LoggerPort, metrics http.Handler) *Server {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Server{
		cfg:      cfg,
		executor: executor,
		logger:   logger,
		metrics:  metrics,
		queue:    make(chan *entity.Task, cfg.QueueSize),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(httplog.NewLogger("optexity", httplog.Options{
		JSON:    s.cfg.JSONAccessLog,
		Concise: true,
	})))
	r.Use(middleware.Recoverer)

	r.Post("/allocate_task", s.allocateTask)
	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// Run serves HTTP and works the queue until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.Work(ctx)
		return nil
	})
	return g.Wait()
}

// Work executes queued tasks one at a time until ctx is done.
func (s *Server) Work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue:
			s.running.Store(true)
			if err := s.executor.Execute(ctx, task); err != nil {
				s.logger.Error("Task failed", "task_id", task.TaskID, "error", err)
			}
			s.running.Store(false)
		}
	}
}

// Enqueue validates task, marks it allocated and queues it.
func (s *Server) Enqueue(task *entity.Task) error {
	if task.SaveDirectory == "" {
		task.SaveDirectory = s.cfg.SaveDirectory
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if err := definition.CheckCommands(task.Automation); err != nil {
		return err
	}
	task.MarkAllocated(s.now())
	select {
	case s.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

type allocateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) allocateTask(w http.ResponseWriter, r *http.Request) {
	var task entity.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		s.logger.Error("Cannot decode task", "error", err)
		writeJSON(w, http.StatusInternalServerError, allocateResponse{Message: err.Error()})
		return
	}
	if err := s.Enqueue(&task); err != nil {
		s.logger.Error("Error allocating task", "task_id", task.TaskID, "error", err)
		writeJSON(w, http.StatusInternalServerError, allocateResponse{Message: err.Error()})
		return
	}
	s.logger.Info("Task allocated", "task_id", task.TaskID, "queued", len(s.queue))
	writeJSON(w, http.StatusAccepted, allocateResponse{Success: true, Message: "Task has been allocated"})
}

type healthResponse struct {
	Status      string `json:"status"`
	TaskRunning bool   `json:"task_running"`
	QueuedTasks int    `json:"queued_tasks"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		TaskRunning: s.running.Load(),
		QueuedTasks: len(s.queue),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
