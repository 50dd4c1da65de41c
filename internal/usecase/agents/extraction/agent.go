package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/llm/schema"
	"optexity/internal/infrastructure/llm/tokens"
	"optexity/internal/infrastructure/prompts"
)

const agentName = "extraction"

type Config struct {
	Snapshot        entity.SnapshotOptions
	MaxAxtreeTokens int
	MaxHTMLTokens   int
}

func DefaultConfig() Config {
	return Config{
		Snapshot:        entity.SnapshotOptions{MaxElements: 600, IncludeHidden: true},
		MaxAxtreeTokens: 16000,
		MaxHTMLTokens:   24000,
	}
}

// Agent runs extraction actions: structured model extraction from the page
// and lookup of captured network responses.
type Agent struct {
	llm     output.LLMPort
	browser output.BrowserPort
	logger  output.LoggerPort
	metrics output.MetricsPort
	cfg     Config
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
	}
}

func (a *Agent) Execute(ctx context.Context, action *entity.ExtractionAction, mem *entity.Memory) error {
	switch {
	case action.LLM != nil:
		return a.extractLLM(ctx, action.LLM, mem)
	case action.NetworkCall != nil:
		return a.extractNetwork(ctx, action.NetworkCall, mem)
	}
	return entity.ConfigErrorf("extraction_action has no payload")
}

func (a *Agent) extractLLM(ctx context.Context, ex *entity.LLMExtraction, mem *entity.Memory) error {
	a.log(ctx).Info("Extraction agent executing", "sources", ex.Source)

	respSchema, err := schema.FromFormat(agentName, ex.ExtractionFormat)
	if err != nil {
		return err
	}
	formatJSON, err := json.MarshalIndent(ex.ExtractionFormat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal extraction format: %w", err)
	}

	values := map[string]any{
		"instructions": ex.ExtractionInstructions,
		"format":       string(formatJSON),
		"axtree":       "",
		"html":         "",
	}
	state := mem.CurrentBrowserState()
	state.URL = a.browser.CurrentURL()
	state.Title = a.browser.Title()

	if ex.HasSource(entity.SourceAxtree) {
		snap, err := a.browser.Snapshot(ctx, a.cfg.Snapshot)
		if err != nil {
			return fmt.Errorf("snapshot page: %w", err)
		}
		state.Axtree = snap.Axtree
		values["axtree"] = tokens.Truncate(snap.Axtree, a.cfg.MaxAxtreeTokens)
	}
	if ex.HasSource(entity.SourceHTML) {
		html, err := a.browser.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read page html: %w", err)
		}
		values["html"] = tokens.Truncate(html, a.cfg.MaxHTMLTokens)
	}
	var screenshot []byte
	if ex.HasSource(entity.SourceScreenshot) {
		shot, err := a.browser.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		screenshot = shot.Data
		state.Screenshot = shot.Base64()
	}

	prompt, err := prompts.Extraction.Render(values)
	if err != nil {
		return err
	}
	state.FinalPrompt = prompt

	resp, err := a.llm.PredictStructured(ctx, output.PredictRequest{
		SystemPrompt: prompts.Extraction.System,
		Prompt:       prompt,
		Screenshot:   screenshot,
		Schema:       respSchema,
	})
	if resp != nil {
		mem.AddTokenUsage(resp.Usage)
		a.metrics.AddTokens(resp.Usage)
	}
	if err != nil {
		return fmt.Errorf("llm request failed: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Content, &data); err != nil {
		return fmt.Errorf("decode extraction: %w", err)
	}
	state.LLMResponse = data
	mem.AppendOutput(data)

	for _, name := range ex.OutputVariableNames {
		v, ok := data[name]
		if !ok {
			return fmt.Errorf("extraction response has no field %q", name)
		}
		mem.SetGenerated(name, Stringify(v))
	}
	a.log(ctx).Debug("Extraction completed", "fields", len(data), "outputs", ex.OutputVariableNames)
	return nil
}

func (a *Agent) extractNetwork(ctx context.Context, nc *entity.NetworkCallExtraction, mem *entity.Memory) error {
	responses, err := a.browser.NetworkResponses(ctx)
	if err != nil {
		return fmt.Errorf("read network responses: %w", err)
	}

	re, reErr := regexp.Compile(nc.URLPattern)
	var bodies []string
	for _, r := range responses {
		if !strings.Contains(r.URL, nc.URLPattern) && (reErr != nil || !re.MatchString(r.URL)) {
			continue
		}
		var body any = r.Body
		var decoded any
		if json.Unmarshal([]byte(r.Body), &decoded) == nil {
			body = decoded
		}
		mem.AppendOutput(map[string]any{
			"url":    r.URL,
			"status": r.Status,
			"body":   body,
		})
		bodies = append(bodies, r.Body)
	}

	a.log(ctx).Info("Network responses captured", "pattern", nc.URLPattern, "matched", len(bodies))
	if nc.OutputVariableName != "" {
		mem.SetGenerated(nc.OutputVariableName, bodies)
	}
	return nil
}

// Stringify turns an extracted value into a variable value list. Lists map
// element-wise; anything else becomes a one-element list.
func Stringify(v any) []string {
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, scalar(item))
		}
		return out
	}
	return []string{scalar(v)}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func (a *Agent) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, a.logger)
}
