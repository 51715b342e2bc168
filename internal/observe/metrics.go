// Package observe holds the responder's observability plumbing: zap loggers,
// OpenTelemetry metric instruments and the Prometheus-backed meter provider.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without telemetry in tests and tools.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every instrument in this service.
const meterName = "github.com/zhouzirui/z-mentor/backend"

// Metrics groups the instruments recorded by the reply pipeline.
type Metrics struct {
	// Invocations counts pipeline runs by final result.
	Invocations metric.Int64Counter

	// GeneratorDuration tracks generator round trips by provider and outcome.
	GeneratorDuration metric.Float64Histogram

	// LogAppends counts successful chat log appends, split by generated flag.
	LogAppends metric.Int64Counter
}

// generatorBuckets are histogram boundaries in seconds sized for text generation calls.
var generatorBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Invocations, err = m.Int64Counter("zmentor.responder.invocations",
		metric.WithDescription("Reply pipeline invocations by result."),
	); err != nil {
		return nil, err
	}
	if met.GeneratorDuration, err = m.Float64Histogram("zmentor.generator.duration",
		metric.WithDescription("Latency of generator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generatorBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LogAppends, err = m.Int64Counter("zmentor.chatlog.appends",
		metric.WithDescription("Entries appended to the chat log."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordInvocation counts one finished pipeline run.
func (m *Metrics) RecordInvocation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordGeneration observes one generator call.
func (m *Metrics) RecordGeneration(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GeneratorDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordAppend counts one stored log entry.
func (m *Metrics) RecordAppend(ctx context.Context, generated bool) {
	if m == nil {
		return
	}
	m.LogAppends.Add(ctx, 1, metric.WithAttributes(attribute.Bool("generated", generated)))
}
