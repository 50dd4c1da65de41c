package output

import (
	"context"
	"encoding/json"

	"optexity/internal/domain/entity"
)

// LLMPort predicts JSON matching a response schema. When the model answered
// but its content is unusable, the response is still returned next to the
// error so its token usage can be counted.
type LLMPort interface {
	PredictStructured(ctx context.Context, req PredictRequest) (*PredictResponse, error)
}

type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

type PredictRequest struct {
	SystemPrompt string
	Prompt       string
	// Screenshot is an optional JPEG image of the page.
	Screenshot []byte
	Schema     ResponseSchema
}

// PredictResponse carries JSON already repaired and validated against the
// request schema.
type PredictResponse struct {
	Content json.RawMessage
	Usage   entity.TokenUsage
	Model   string
}
