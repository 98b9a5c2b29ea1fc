// Package observe provides observability primitives for gagspeak:
// OpenTelemetry metrics, tracing, trace-aware logging and the HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus through the exporter bridge set up by [InitProvider]. Use
// [DefaultMetrics] in production wiring; tests should build their own with
// [NewMetrics] and a private [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all gagspeak metrics.
const meterName = "github.com/MrWong99/gagspeak"

// Word routes reported through [Metrics.RecordWord].
const (
	RouteResolved    = "resolved"    // garbled from phonemes
	RouteFallback    = "fallback"    // no usable phonemes, filler text
	RouteSilenced    = "silenced"    // no-sound mouth state
	RouteSkipped     = "skipped"     // inside a roleplay segment or an emote
	RoutePassthrough = "passthrough" // no letters to garble
)

// Metrics holds the metric instruments of the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// GarbleDuration tracks the latency of a whole garble call.
	GarbleDuration metric.Float64Histogram

	// GarbleWords counts words by attribute.String("route", ...).
	GarbleWords metric.Int64Counter

	// GarbleFailures counts garble calls that recovered from a panic and
	// returned an empty string.
	GarbleFailures metric.Int64Counter

	// GaggedWearers tracks wearers with at least one gag equipped.
	GaggedWearers metric.Int64UpDownCounter

	// RelayMessages counts websocket relay messages by
	// attribute.String("status", ...): ok, limited, invalid.
	RelayMessages metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// garbleBuckets are histogram boundaries in seconds. Garbling is an
// in-process string transform, so the interesting range is sub-millisecond.
var garbleBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01, 0.05,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GarbleDuration, err = m.Float64Histogram("gagspeak.garble.duration",
		metric.WithDescription("Latency of garbling one chat message."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(garbleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GarbleWords, err = m.Int64Counter("gagspeak.garble.words",
		metric.WithDescription("Words processed by route."),
	); err != nil {
		return nil, err
	}
	if met.GarbleFailures, err = m.Int64Counter("gagspeak.garble.failures",
		metric.WithDescription("Garble calls that failed and returned an empty message."),
	); err != nil {
		return nil, err
	}
	if met.GaggedWearers, err = m.Int64UpDownCounter("gagspeak.wearers.gagged",
		metric.WithDescription("Wearers with at least one gag equipped."),
	); err != nil {
		return nil, err
	}
	if met.RelayMessages, err = m.Int64Counter("gagspeak.relay.messages",
		metric.WithDescription("Websocket relay messages by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("gagspeak.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// from [otel.GetMeterProvider]. Call it after [InitProvider] so instruments
// bind to the Prometheus bridge.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordGarble records the duration of one garble call.
func (m *Metrics) RecordGarble(ctx context.Context, d time.Duration) {
	m.GarbleDuration.Record(ctx, d.Seconds())
}

// RecordWords adds n words for route.
func (m *Metrics) RecordWords(ctx context.Context, route string, n int64) {
	if n == 0 {
		return
	}
	m.GarbleWords.Add(ctx, n, metric.WithAttributes(attribute.String("route", route)))
}

// RecordFailure counts one failed garble call.
func (m *Metrics) RecordFailure(ctx context.Context) {
	m.GarbleFailures.Add(ctx, 1)
}

// RecordRelayMessage counts one relay message with status.
func (m *Metrics) RecordRelayMessage(ctx context.Context, status string) {
	m.RelayMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
