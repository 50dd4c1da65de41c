package openrouter

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/llm/schema"
	"optexity/internal/infrastructure/llm/tokens"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var _ output.LLMPort = (*OpenRouterAdapter)(nil)

type OpenRouterAdapter struct {
	client          *openai.Client
	model           string
	temperature     float32
	maxPromptTokens int
	limiter         *rate.Limiter
	logger          output.LoggerPort
}

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float32
	MaxPromptTokens   int
	RequestsPerSecond float64
	Logger            output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:            apiKey,
		Model:             model,
		BaseURL:           "https://openrouter.ai/api/v1",
		MaxPromptTokens:   100_000,
		RequestsPerSecond: 2,
	}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("HTTP Request", "method", req.Method, "url", req.URL.String(), "contentLength", req.ContentLength)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("HTTP Request failed", "url", req.URL.String(), "error", err, "elapsed", time.Since(start))
		return resp, err
	}
	t.logger.Debug("HTTP Response", "status", resp.Status, "statusCode", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

func NewOpenRouterAdapter(cfg Config) *OpenRouterAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	if cfg.Logger != nil {
		config.HTTPClient = &http.Client{
			Transport: &loggingTransport{base: http.DefaultTransport, logger: cfg.Logger},
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &OpenRouterAdapter{
		client:          openai.NewClientWithConfig(config),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxPromptTokens: cfg.MaxPromptTokens,
		limiter:         rate.NewLimiter(limit, 1),
		logger:          cfg.Logger,
	}
}

func (a *OpenRouterAdapter) PredictStructured(ctx context.Context, req output.PredictRequest) (*output.PredictResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	prompt := tokens.Truncate(req.Prompt, a.maxPromptTokens)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    buildMessages(req.SystemPrompt, prompt, req.Screenshot),
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(req.Schema.Name),
				Schema: req.Schema.Schema,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	out := &output.PredictResponse{Usage: convertUsage(resp.Usage), Model: resp.Model}
	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("no choices in response")
	}

	out.Content, err = schema.Decode(resp.Choices[0].Message.Content, req.Schema)
	if err != nil {
		return out, err
	}
	return out, nil
}

func buildMessages(system, prompt string, screenshot []byte) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	if len(screenshot) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(screenshot),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
}

func convertUsage(u openai.Usage) entity.TokenUsage {
	usage := entity.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.CompletionTokensDetails != nil {
		usage.ThoughtsTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func schemaName(name string) string {
	if name == "" {
		return "response"
	}
	return invalidNameChars.ReplaceAllString(name, "_")
}
