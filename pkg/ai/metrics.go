package ai

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of AI provider calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "model"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "provider_failures_total",
		Help:      "Number of failed AI provider calls by failure kind",
	}, []string{"provider", "model", "kind"})
)

// observeCall records duration and failure metrics for one provider call and
// closes out the span status.
func observeCall(span trace.Span, provider, model string, start time.Time, err error) {
	providerDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	providerFailures.WithLabelValues(provider, model, ErrorKind(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorKind(err))
}

func startCallSpan(ctx context.Context, tracer trace.Tracer, provider, model string, cfg SamplingConfig) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ai."+provider+".generate", trace.WithAttributes(
		attribute.String("ai.model", model),
		attribute.Float64("ai.temperature", float64(cfg.Temperature)),
		attribute.Float64("ai.top_p", float64(cfg.TopP)),
		attribute.Float64("ai.top_k", float64(cfg.TopK)),
	))
}
