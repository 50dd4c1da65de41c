package indexprediction

import (
	"context"
	"encoding/json"
	"fmt"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/llm/schema"
	"optexity/internal/infrastructure/llm/tokens"
	"optexity/internal/infrastructure/prompts"
)

const agentName = "index_prediction"

// Prediction is the structured answer requested from the model.
type Prediction struct {
	Index int `json:"index" jsonschema:"description=Index of the target element or -1 when nothing fits"`
}

type Config struct {
	Snapshot        entity.SnapshotOptions
	MaxAxtreeTokens int
	WithScreenshot  bool
}

func DefaultConfig() Config {
	return Config{
		Snapshot:        entity.SnapshotOptions{MaxElements: 400},
		MaxAxtreeTokens: 12000,
		WithScreenshot:  true,
	}
}

// Agent picks the interactive element an instruction refers to.
type Agent struct {
	llm     output.LLMPort
	browser output.BrowserPort
	logger  output.LoggerPort
	metrics output.MetricsPort
	cfg     Config
	schema  output.ResponseSchema
}

func New(
	llm output.LLMPort,
	browser output.BrowserPort,
	logger output.LoggerPort,
	metrics output.MetricsPort,
	cfg Config,
) *Agent {
	return &Agent{
		llm:     llm,
		browser: browser,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		schema:  schema.Reflect[Prediction](agentName),
	}
}

// Predict refreshes the current browser state in mem and asks the model for
// an element index. It returns false when no usable index came back; the
// reason is logged, never returned.
func (a *Agent) Predict(ctx context.Context, mem *entity.Memory, instructions string) (int, bool) {
	snap, err := a.refresh(ctx, mem)
	if err != nil {
		a.fail(ctx, "Cannot capture page for index prediction", err)
		return 0, false
	}

	index, err := a.predict(ctx, mem, instructions, snap)
	if err != nil {
		a.fail(ctx, "Index prediction failed", err)
		return 0, false
	}
	if index < 0 || index >= len(snap.Elements) {
		a.log(ctx).Warn("Model returned no usable element", "index", index, "elements", len(snap.Elements))
		a.metrics.IncPredictionFailure(agentName)
		return 0, false
	}
	a.log(ctx).Info("Predicted element", "index", index, "instructions", instructions)
	return index, true
}

// refresh overwrites the tail browser state with a fresh snapshot.
func (a *Agent) refresh(ctx context.Context, mem *entity.Memory) (*entity.PageSnapshot, error) {
	snap, err := a.browser.Snapshot(ctx, a.cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	state := mem.CurrentBrowserState()
	*state = entity.BrowserState{
		URL:    snap.URL,
		Title:  snap.Title,
		Axtree: snap.Axtree,
	}

	if a.cfg.WithScreenshot {
		shot, err := a.browser.Screenshot(ctx)
		if err != nil {
			a.log(ctx).Warn("Screenshot failed", "error", err)
		} else {
			state.Screenshot = shot.Base64()
		}
	}
	return snap, nil
}

func (a *Agent) predict(ctx context.Context, mem *entity.Memory, instructions string, snap *entity.PageSnapshot) (int, error) {
	prompt, err := prompts.IndexPrediction.Render(map[string]any{
		"instruction": instructions,
		"title":       snap.Title,
		"url":         snap.URL,
		"axtree":      tokens.Truncate(snap.Axtree, a.cfg.MaxAxtreeTokens),
	})
	if err != nil {
		return 0, err
	}

	state := mem.CurrentBrowserState()
	state.FinalPrompt = prompt

	resp, err := a.llm.PredictStructured(ctx, output.PredictRequest{
		SystemPrompt: prompts.IndexPrediction.System,
		Prompt:       prompt,
		Schema:       a.schema,
	})
	if resp != nil {
		mem.AddTokenUsage(resp.Usage)
		a.metrics.AddTokens(resp.Usage)
	}
	if err != nil {
		return 0, fmt.Errorf("llm request failed: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(resp.Content, &p); err != nil {
		return 0, fmt.Errorf("decode prediction: %w", err)
	}
	state.LLMResponse = p
	return p.Index, nil
}

func (a *Agent) fail(ctx context.Context, msg string, err error) {
	a.log(ctx).Error(msg, "error", err)
	a.metrics.IncPredictionFailure(agentName)
}

func (a *Agent) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, a.logger)
}
