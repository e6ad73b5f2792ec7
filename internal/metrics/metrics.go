package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/internal/pipeline"
)

const namespace = "kaiwa"

// HTTP metrics (incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Conversation metrics (incremented by the orchestrator and pipelines).
var (
	TurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Conversation turns by mode and outcome.",
	}, []string{"mode", "outcome"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"pipeline", "stage"})

	StageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Pipeline stage failures by error code.",
	}, []string{"pipeline", "stage", "error_code"})

	CancellationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "adapter_cancellations_total",
		Help:      "Non-fatal recognition and synthesis outcomes reported by adapters.",
	}, []string{"stage", "reason"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsTotal,
		StageDuration,
		StageFailuresTotal,
		CancellationsTotal,
	)
}

// InstrumentEcho returns middleware that records HTTP request metrics.
// The echo route pattern is the path label to keep cardinality bounded.
func InstrumentEcho() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			pattern := c.Path()
			if pattern == "" {
				pattern = "unknown"
			}
			method := c.Request().Method

			HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, pattern).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordCancellation counts a non-fatal adapter outcome such as an empty
// recognition or a canceled synthesis.
func RecordCancellation(err error) {
	var cancel *domain.CancellationError
	switch {
	case errors.As(err, &cancel):
		CancellationsTotal.WithLabelValues(cancel.Stage, string(cancel.Reason)).Inc()
	case errors.Is(err, domain.ErrRecognitionEmpty):
		CancellationsTotal.WithLabelValues(domain.StageRecognition, "NoMatch").Inc()
	default:
		CancellationsTotal.WithLabelValues("unknown", domain.ErrorCode(err)).Inc()
	}
}

// PipelineObserver feeds stage timings and failures into Prometheus.
type PipelineObserver struct{}

var _ pipeline.Observer = PipelineObserver{}

func (PipelineObserver) StepFinished(definition string, step pipeline.StepID, d time.Duration, err error) {
	StageDuration.WithLabelValues(definition, string(step)).Observe(d.Seconds())
	if err != nil {
		StageFailuresTotal.WithLabelValues(definition, string(step), domain.ErrorCode(err)).Inc()
	}
}
