// Package observe holds the OpenTelemetry metric instruments of chirpsounder
// and the Prometheus exporter bridge that serves them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] and a private
// MeterProvider; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Honorable-Knights-of-the-Roundtable/chirpsounder"

// Session outcomes, used as the "status" attribute.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// Sessions counts finished duplex sessions. Attribute: status.
	Sessions metric.Int64Counter

	// ActiveSessions is the number of sessions between start and hand-off.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks the wall time of a session, open to release.
	SessionDuration metric.Float64Histogram

	BytesPlayed   metric.Int64Counter
	BytesCaptured metric.Int64Counter

	// PortFailures counts port errors. Attributes: port, op.
	PortFailures metric.Int64Counter

	// CaptureFiles counts persisted capture files. Attribute: mode.
	CaptureFiles metric.Int64Counter
}

// Sounding sessions last seconds to minutes.
var durationBuckets = []float64{
	0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates all instruments on the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Sessions, err = m.Int64Counter("chirpsounder.sessions",
		metric.WithDescription("Finished duplex sessions by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("chirpsounder.active_sessions",
		metric.WithDescription("Number of running duplex sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("chirpsounder.session.duration",
		metric.WithDescription("Wall time of a duplex session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BytesPlayed, err = m.Int64Counter("chirpsounder.bytes.played",
		metric.WithDescription("PCM bytes written to playback streams."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.BytesCaptured, err = m.Int64Counter("chirpsounder.bytes.captured",
		metric.WithDescription("PCM bytes read from capture streams."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PortFailures, err = m.Int64Counter("chirpsounder.port.failures",
		metric.WithDescription("Audio port failures by port and operation."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFiles, err = m.Int64Counter("chirpsounder.capture.files",
		metric.WithDescription("Persisted capture files by output mode."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics, created on first call
// from otel.GetMeterProvider. Panics if instrument creation fails.
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

func (m *Metrics) RecordSession(ctx context.Context, status string, elapsed time.Duration) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.SessionDuration.Record(ctx, elapsed.Seconds())
}

func (m *Metrics) RecordPortFailure(ctx context.Context, port, op string) {
	m.PortFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("port", port),
			attribute.String("op", op),
		),
	)
}

func (m *Metrics) RecordCaptureFile(ctx context.Context, mode string) {
	m.CaptureFiles.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
