package output

import (
	"time"

	"optexity/internal/domain/entity"
)

type MetricsPort interface {
	ObserveStep(kind entity.ActionKind, status string, d time.Duration)
	IncLocatorRetry()
	IncFallback(kind string)
	IncPredictionFailure(agent string)
	IncDownload(outcome string)
	IncTask(status entity.TaskStatus)
	AddTokens(usage entity.TokenUsage)
}
