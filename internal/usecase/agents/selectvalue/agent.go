package selectvalue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/llm/schema"
	"optexity/internal/infrastructure/prompts"
	"optexity/internal/usecase/selectmatch"
)

const (
	agentName = "select_value"
	cacheSize = 256
)

var _ selectmatch.SemanticMatcher = (*Agent)(nil)

type Prediction struct {
	MatchedValues []string `json:"matched_values" jsonschema:"description=Option values that match the patterns"`
}

// Agent maps free-text patterns onto dropdown option values with the model.
// Answers are cached per option list and pattern set.
type Agent struct {
	llm     output.LLMPort
	logger  output.LoggerPort
	metrics output.MetricsPort
	schema  output.ResponseSchema
	cache   *lru.Cache[string, []string]
}

func New(llm output.LLMPort, logger output.LoggerPort, metrics output.MetricsPort) *Agent {
	cache, _ := lru.New[string, []string](cacheSize)
	return &Agent{
		llm:     llm,
		logger:  logger,
		metrics: metrics,
		schema:  schema.Reflect[Prediction](agentName),
		cache:   cache,
	}
}

func (a *Agent) MatchValues(ctx context.Context, options []entity.SelectOption, patterns []string, mem *entity.Memory) ([]string, error) {
	key := cacheKey(options, patterns)
	if values, ok := a.cache.Get(key); ok {
		a.log(ctx).Debug("Select value cache hit", "patterns", patterns)
		return values, nil
	}

	prompt, err := prompts.SelectValue.Render(map[string]any{
		"options":  formatOptions(options),
		"patterns": strings.Join(patterns, "\n"),
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.llm.PredictStructured(ctx, output.PredictRequest{
		SystemPrompt: prompts.SelectValue.System,
		Prompt:       prompt,
		Schema:       a.schema,
	})
	if resp != nil {
		mem.AddTokenUsage(resp.Usage)
		a.metrics.AddTokens(resp.Usage)
	}
	if err != nil {
		a.metrics.IncPredictionFailure(agentName)
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(resp.Content, &p); err != nil {
		a.metrics.IncPredictionFailure(agentName)
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	state := mem.CurrentBrowserState()
	state.FinalPrompt = prompt
	state.LLMResponse = p

	a.cache.Add(key, p.MatchedValues)
	return p.MatchedValues, nil
}

func formatOptions(options []entity.SelectOption) string {
	var sb strings.Builder
	for _, o := range options {
		sb.WriteString(o.Value)
		sb.WriteString(": ")
		sb.WriteString(o.Label)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func cacheKey(options []entity.SelectOption, patterns []string) string {
	data, _ := json.Marshal(struct {
		O []entity.SelectOption `json:"o"`
		P []string              `json:"p"`
	}{options, patterns})
	return string(data)
}

func (a *Agent) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, a.logger)
}
