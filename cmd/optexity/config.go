package main

import (
	"optexity/internal/application/port/output"
	"optexity/internal/di"
)

func containerConfig(e output.ConfigPort) di.Config {
	return di.Config{
		LLMProvider:       e.GetWithDefault("LLM_PROVIDER", "gemini"),
		LLMModel:          e.Get("LLM_MODEL"),
		OpenRouterAPIKey:  e.Get("OPENROUTER_API_KEY"),
		GeminiAPIKey:      e.Get("GEMINI_API_KEY"),
		RequestsPerSecond: e.GetFloat("LLM_REQUESTS_PER_SECOND", 0),
		MaxPromptTokens:   e.GetInt("LLM_MAX_PROMPT_TOKENS", 0),

		BrowserHeadless: e.GetBool("BROWSER_HEADLESS", true),
		BrowserBin:      e.Get("BROWSER_BIN"),
		BrowserTimeout:  e.GetDuration("BROWSER_TIMEOUT", 0),

		SecretsServerURL: e.GetWithDefault("SERVER_URL", "http://localhost:8000"),
		SecretsAPIKey:    e.Get("API_KEY"),

		DownloadWaitTimeout: e.GetDuration("DOWNLOAD_WAIT_TIMEOUT", 0),

		LogLevel:     e.GetWithDefault("LOG_LEVEL", "info"),
		LogFile:      e.Get("LOG_FILE"),
		TaskLogFiles: e.GetBool("TASK_LOG_FILES", true),
	}
}
