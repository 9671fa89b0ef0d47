package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const apiInstrumentationName = "github.com/fyrsmithlabs/expmem/internal/http"

// Response outcomes.
const (
	outcomeOK          = "ok"
	outcomeRejected    = "rejected"
	outcomeUnavailable = "unavailable"
	outcomeFailed      = "failed"
)

// operations maps echo route patterns to the memory operation they serve.
var operations = map[string]string{
	"/health":                   "health",
	"/metrics":                  "metrics",
	"/api/v1/experiences":       "save",
	"/api/v1/recall":            "recall",
	"/api/v1/think":             "think",
	"/api/v1/outcomes":          "record_outcome",
	"/api/v1/growth":            "measure_growth",
	"/api/v1/reflection":        "reflect",
	"/api/v1/sessions/:chat_id": "initialize_session",
	"/api/v1/mail":              "deliver_mail",
}

// apiResponses is scraped from /metrics next to the memory and session
// collectors.
var apiResponses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "expmem",
	Subsystem: "api",
	Name:      "responses_total",
	Help:      "API responses by memory operation and outcome.",
}, []string{"operation", "outcome"})

// apiMetrics records per-operation latency and in-flight calls through
// OTLP, and response outcomes through Prometheus.
type apiMetrics struct {
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newAPIMetrics(meter metric.Meter, logger *zap.Logger) *apiMetrics {
	if meter == nil {
		meter = otel.Meter(apiInstrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &apiMetrics{}
	var err error
	m.latency, err = meter.Float64Histogram(
		"expmem.api.operation.duration",
		metric.WithDescription("Latency of memory operations served over HTTP."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		logger.Warn("api latency histogram unavailable", zap.Error(err))
	}
	m.inFlight, err = meter.Int64UpDownCounter(
		"expmem.api.operation.in_flight",
		metric.WithDescription("Memory operations currently being served."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("api in-flight counter unavailable", zap.Error(err))
	}
	return m
}

// middleware must run outside the handler that renders errors, so the
// status it reads is the one sent to the client.
func (m *apiMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			op := operationFor(c.Path())
			ctx := c.Request().Context()
			opAttr := metric.WithAttributes(attribute.String("operation", op))

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1, opAttr)
				defer m.inFlight.Add(ctx, -1, opAttr)
			}

			start := time.Now()
			err := next(c)

			outcome := outcomeFor(c.Response().Status)
			apiResponses.WithLabelValues(op, outcome).Inc()
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
					attribute.String("operation", op),
					attribute.String("outcome", outcome),
				))
			}
			return err
		}
	}
}

func operationFor(route string) string {
	if op, ok := operations[route]; ok {
		return op
	}
	return "unmatched"
}

// outcomeFor separates caller mistakes from a missing collaborator, which
// handlers report as 503.
func outcomeFor(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return outcomeUnavailable
	case status >= http.StatusInternalServerError:
		return outcomeFailed
	case status >= http.StatusBadRequest:
		return outcomeRejected
	default:
		return outcomeOK
	}
}
