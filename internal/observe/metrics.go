// Package observe provides the observability primitives shared by the game,
// the echo generator and the voice controller: OpenTelemetry metrics,
// tracing helpers, trace-aware logging and the HTTP middleware used by the
// local debug server.
//
// Metrics go through the OpenTelemetry Metrics API. [InitProvider] bridges
// them to Prometheus so they can be scraped from /metrics. [DefaultMetrics]
// returns a package-level instance bound to the global meter provider; tests
// should call [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every soulecho instrument.
const meterName = "github.com/MrWong99/soulecho"

// Echo outcomes recorded on [Metrics.EchoGenerated].
const (
	OutcomeRemote   = "remote"
	OutcomeFallback = "fallback"
)

// Audio directions recorded on [Metrics.VoiceAudioChunks].
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds all OpenTelemetry instruments of the application. The
// underlying OTel types are safe for concurrent use.
type Metrics struct {
	// ── Echo generation ─────────────────────────────────────────────────────

	// EchoDuration tracks the latency of one Generate call, fallbacks
	// included.
	EchoDuration metric.Float64Histogram

	// EchoGenerated counts generated echoes. Attribute: outcome.
	EchoGenerated metric.Int64Counter

	// ProviderRequests counts backend calls. Attributes: provider, kind,
	// status.
	ProviderRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, to.
	BreakerTransitions metric.Int64Counter

	// ── Game ────────────────────────────────────────────────────────────────

	// Reflections counts reflection attempts. Attribute: result.
	Reflections metric.Int64Counter

	// FocusGained sums clarity gained. Attribute: source (tick|breathe).
	FocusGained metric.Float64Counter

	// ── Voice ───────────────────────────────────────────────────────────────

	// VoiceSessionsActive tracks open voice sessions.
	VoiceSessionsActive metric.Int64UpDownCounter

	// VoiceSessionDuration tracks how long voice sessions stay open.
	VoiceSessionDuration metric.Float64Histogram

	// VoiceAudioChunks counts audio chunks. Attribute: direction.
	VoiceAudioChunks metric.Int64Counter

	// VoiceInterruptions counts barge-ins reported by the model.
	VoiceInterruptions metric.Int64Counter

	// ── HTTP ────────────────────────────────────────────────────────────────

	// HTTPRequestDuration tracks debug server latency. Attributes: method,
	// route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds sized for remote model
// round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// sessionBuckets are histogram boundaries in seconds for voice sessions.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 3600,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EchoDuration, err = m.Float64Histogram("soulecho.echo.duration",
		metric.WithDescription("Latency of soul echo generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EchoGenerated, err = m.Int64Counter("soulecho.echo.generated",
		metric.WithDescription("Soul echoes produced, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("soulecho.provider.requests",
		metric.WithDescription("Backend requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("soulecho.provider.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	if met.Reflections, err = m.Int64Counter("soulecho.game.reflections",
		metric.WithDescription("Reflection attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.FocusGained, err = m.Float64Counter("soulecho.game.focus.gained",
		metric.WithDescription("Clarity gained by source."),
	); err != nil {
		return nil, err
	}

	if met.VoiceSessionsActive, err = m.Int64UpDownCounter("soulecho.voice.sessions.active",
		metric.WithDescription("Number of open voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.VoiceSessionDuration, err = m.Float64Histogram("soulecho.voice.session.duration",
		metric.WithDescription("Lifetime of voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VoiceAudioChunks, err = m.Int64Counter("soulecho.voice.audio.chunks",
		metric.WithDescription("Audio chunks exchanged with the live model, by direction."),
	); err != nil {
		return nil, err
	}
	if met.VoiceInterruptions, err = m.Int64Counter("soulecho.voice.interruptions",
		metric.WithDescription("Playback interruptions requested by the live model."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("soulecho.http.request.duration",
		metric.WithDescription("Debug server request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordEcho records one Generate call.
func (m *Metrics) RecordEcho(ctx context.Context, outcome string, d time.Duration) {
	m.EchoDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("outcome", outcome)))
	m.EchoGenerated.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordProviderRequest records one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
			Attr("status", status),
		),
	)
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("to", to)),
	)
}

// RecordReflection records a reflection attempt.
func (m *Metrics) RecordReflection(ctx context.Context, result string) {
	m.Reflections.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordFocusGain records gained clarity. Zero gains are dropped.
func (m *Metrics) RecordFocusGain(ctx context.Context, source string, amount float64) {
	if amount <= 0 {
		return
	}
	m.FocusGained.Add(ctx, amount, metric.WithAttributes(Attr("source", source)))
}

// RecordAudioChunk counts one audio chunk in the given direction.
func (m *Metrics) RecordAudioChunk(ctx context.Context, direction string) {
	m.VoiceAudioChunks.Add(ctx, 1, metric.WithAttributes(Attr("direction", direction)))
}
