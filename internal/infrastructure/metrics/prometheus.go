package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var (
	_ output.MetricsPort = (*Recorder)(nil)
	_ output.MetricsPort = Nop{}
)

const namespace = "optexity"

// Recorder exports run metrics to a prometheus registry.
type Recorder struct {
	gatherer prometheus.Gatherer

	steps              *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	locatorRetries     prometheus.Counter
	fallbacks          *prometheus.CounterVec
	predictionFailures *prometheus.CounterVec
	downloads          *prometheus.CounterVec
	tasks              *prometheus.CounterVec
	tokens             *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. A nil registry gets a fresh one.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "steps_total",
			Help:      "Executed automation steps by action kind and outcome",
		}, []string{"kind", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "step_duration_seconds",
			Help:      "Wall time of a single automation step",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		locatorRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interaction",
			Name:      "locator_retries_total",
			Help:      "Failed locator attempts that were retried or exhausted",
		}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interaction",
			Name:      "fallbacks_total",
			Help:      "Interactions resolved through model prediction",
		}, []string{"kind"}),
		predictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "prediction_failures_total",
			Help:      "Model predictions that failed or returned nothing usable",
		}, []string{"agent"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "captures_total",
			Help:      "Download captures by outcome",
		}, []string{"outcome"}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "completed_total",
			Help:      "Finished tasks by final status",
		}, []string{"status"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Model tokens consumed by kind",
		}, []string{"kind"}),
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveStep(kind entity.ActionKind, status string, d time.Duration) {
	r.steps.WithLabelValues(string(kind), status).Inc()
	r.stepDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (r *Recorder) IncLocatorRetry() {
	r.locatorRetries.Inc()
}

func (r *Recorder) IncFallback(kind string) {
	r.fallbacks.WithLabelValues(kind).Inc()
}

func (r *Recorder) IncPredictionFailure(agent string) {
	r.predictionFailures.WithLabelValues(agent).Inc()
}

func (r *Recorder) IncDownload(outcome string) {
	r.downloads.WithLabelValues(outcome).Inc()
}

func (r *Recorder) IncTask(status entity.TaskStatus) {
	r.tasks.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) AddTokens(usage entity.TokenUsage) {
	r.tokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	r.tokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
	r.tokens.WithLabelValues("thoughts").Add(float64(usage.ThoughtsTokens))
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveStep(entity.ActionKind, string, time.Duration) {}
func (Nop) IncLocatorRetry()                                     {}
func (Nop) IncFallback(string)                                   {}
func (Nop) IncPredictionFailure(string)                          {}
func (Nop) IncDownload(string)                                   {}
func (Nop) IncTask(entity.TaskStatus)                            {}
func (Nop) AddTokens(entity.TokenUsage)                          {}
