package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"optexity/internal/application/port/input"
	"optexity/internal/application/port/output"
	"optexity/internal/application/service"
	"optexity/internal/application/usecase"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/browser/rod"
	"optexity/internal/infrastructure/llm/gemini"
	"optexity/internal/infrastructure/llm/openrouter"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/infrastructure/metrics"
	"optexity/internal/infrastructure/secrets"
	"optexity/internal/infrastructure/storage/tracefile"
	"optexity/internal/infrastructure/userinteraction"
	"optexity/internal/usecase/agents/extraction"
	"optexity/internal/usecase/agents/indexprediction"
	"optexity/internal/usecase/agents/selectvalue"
	"optexity/internal/usecase/download"
	"optexity/internal/usecase/executor"
	"optexity/internal/usecase/interaction"
	"optexity/internal/usecase/selectmatch"
	"optexity/internal/usecase/twofactor"
)

type Container struct {
	Browser        output.BrowserPort
	LLM            output.LLMPort
	Logger         output.LoggerPort
	Metrics        *metrics.Recorder
	MetricsHandler http.Handler
	Runner         input.AutomationRunner
	TaskExecutor   input.TaskExecutor
}

type Config struct {
	LLMProvider       string
	LLMModel          string
	OpenRouterAPIKey  string
	GeminiAPIKey      string
	RequestsPerSecond float64
	MaxPromptTokens   int

	BrowserHeadless bool
	BrowserBin      string
	BrowserTimeout  time.Duration

	SecretsServerURL string
	SecretsAPIKey    string

	DownloadWaitTimeout time.Duration

	LogLevel string
	LogFile  string
	// TaskLogFiles tees each task's log into its own log_file_path.
	TaskLogFiles bool
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.FilePath = cfg.LogFile
	log, err := logger.NewLoggerAdapter(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	llm, err := newLLMRegistry(cfg, log).Resolve(ctx, cfg.LLMProvider, cfg.LLMModel)
	if err != nil {
		log.Close()
		return nil, err
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.BrowserHeadless
	browserCfg.Bin = cfg.BrowserBin
	if cfg.BrowserTimeout > 0 {
		browserCfg.Timeout = cfg.BrowserTimeout
	}
	browser, err := rod.NewBrowserAdapter(browserCfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	recorder := metrics.NewRecorder(nil)
	progress := userinteraction.NewConsoleProgress()

	downloadCfg := download.DefaultConfig()
	if cfg.DownloadWaitTimeout > 0 {
		downloadCfg.WaitTimeout = cfg.DownloadWaitTimeout
	}

	interactions := interaction.New(
		browser,
		indexprediction.New(llm, browser, log, recorder, indexprediction.DefaultConfig()),
		selectmatch.New(selectvalue.New(llm, log, recorder), log),
		download.New(downloadCfg, log, recorder),
		progress,
		log,
		recorder,
	)
	runner := executor.New(
		browser,
		interactions,
		extraction.New(llm, browser, log, recorder, extraction.DefaultConfig()),
		twofactor.New(secrets.New(secrets.DefaultConfig(cfg.SecretsServerURL, cfg.SecretsAPIKey), log), log),
		tracefile.New(),
		progress,
		log,
		recorder,
	)

	var taskLogger usecase.TaskLoggerFactory
	if cfg.TaskLogFiles {
		taskLogger = func(task *entity.Task) (output.LoggerPort, error) {
			c := logCfg
			c.FilePath = task.LogFilePath
			return logger.NewLoggerAdapter(c)
		}
	}

	return &Container{
		Browser:        browser,
		LLM:            llm,
		Logger:         log,
		Metrics:        recorder,
		MetricsHandler: recorder.Handler(),
		Runner:         runner,
		TaskExecutor:   usecase.NewExecuteTaskUseCase(browser, runner, progress, log, recorder, taskLogger),
	}, nil
}

func newLLMRegistry(cfg Config, log output.LoggerPort) *service.ModelRegistry {
	registry := service.NewModelRegistry()
	registry.Register("gemini", func(ctx context.Context, model string) (output.LLMPort, error) {
		c := gemini.DefaultConfig(cfg.GeminiAPIKey, model)
		applyLLMLimits(&c.RequestsPerSecond, &c.MaxPromptTokens, cfg)
		c.Logger = log
		return gemini.NewGeminiAdapter(ctx, c)
	}, "gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash")
	registry.Register("openrouter", func(_ context.Context, model string) (output.LLMPort, error) {
		c := openrouter.DefaultConfig(cfg.OpenRouterAPIKey, model)
		applyLLMLimits(&c.RequestsPerSecond, &c.MaxPromptTokens, cfg)
		c.Logger = log
		return openrouter.NewOpenRouterAdapter(c), nil
	})
	return registry
}

func applyLLMLimits(rps *float64, maxTokens *int, cfg Config) {
	if cfg.RequestsPerSecond > 0 {
		*rps = cfg.RequestsPerSecond
	}
	if cfg.MaxPromptTokens > 0 {
		*maxTokens = cfg.MaxPromptTokens
	}
}

func (c *Container) Close() {
	if c.Browser != nil {
		c.Browser.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
