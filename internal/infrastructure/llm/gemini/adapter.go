package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/llm/schema"
	"optexity/internal/infrastructure/llm/tokens"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

var _ output.LLMPort = (*GeminiAdapter)(nil)

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiAdapter struct {
	models          generator
	model           string
	temperature     float32
	maxPromptTokens int
	limiter         *rate.Limiter
	logger          output.LoggerPort
}

type Config struct {
	APIKey            string
	Model             string
	Temperature       float32
	MaxPromptTokens   int
	RequestsPerSecond float64
	Logger            output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return Config{
		APIKey:            apiKey,
		Model:             model,
		MaxPromptTokens:   200_000,
		RequestsPerSecond: 2,
	}
}

func NewGeminiAdapter(ctx context.Context, cfg Config) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newAdapter(client.Models, cfg), nil
}

func newAdapter(models generator, cfg Config) *GeminiAdapter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &GeminiAdapter{
		models:          models,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxPromptTokens: cfg.MaxPromptTokens,
		limiter:         rate.NewLimiter(limit, 1),
		logger:          cfg.Logger,
	}
}

func (a *GeminiAdapter) PredictStructured(ctx context.Context, req output.PredictRequest) (*output.PredictResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(tokens.Truncate(req.Prompt, a.maxPromptTokens))}
	if len(req.Screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Screenshot, "image/jpeg"))
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(a.temperature),
		ResponseMIMEType: "application/json",
	}
	if len(req.Schema.Schema) > 0 {
		var doc any
		if err := json.Unmarshal(req.Schema.Schema, &doc); err != nil {
			return nil, fmt.Errorf("decode schema %s: %w", req.Schema.Name, err)
		}
		config.ResponseJsonSchema = doc
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := a.models.GenerateContent(ctx, a.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("generate content failed: %w", err)
	}

	out := &output.PredictResponse{Usage: convertUsage(resp.UsageMetadata), Model: a.model}
	if a.logger != nil {
		a.logger.Debug("Gemini response", "model", a.model, "schema", req.Schema.Name, "totalTokens", out.Usage.TotalTokens)
	}

	text := resp.Text()
	if text == "" {
		return out, fmt.Errorf("empty response from %s", a.model)
	}
	out.Content, err = schema.Decode(text, req.Schema)
	if err != nil {
		return out, err
	}
	return out, nil
}

func convertUsage(m *genai.GenerateContentResponseUsageMetadata) entity.TokenUsage {
	if m == nil {
		return entity.TokenUsage{}
	}
	return entity.TokenUsage{
		InputTokens:    int(m.PromptTokenCount),
		OutputTokens:   int(m.CandidatesTokenCount),
		ToolUseTokens:  int(m.ToolUsePromptTokenCount),
		ThoughtsTokens: int(m.ThoughtsTokenCount),
		TotalTokens:    int(m.TotalTokenCount),
	}
}
