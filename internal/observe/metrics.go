// Package observe holds the service's OpenTelemetry metric instruments and
// the Prometheus bridge that exposes them on /metrics.
//
// Instruments are created from an explicit metric.MeterProvider; nothing is
// registered globally. Tests build Metrics over an sdkmetric.ManualReader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hyperjump/embedapi"

// Metrics holds all metric instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	meter metric.Meter

	// CacheLookups counts cache reads. Attributes: backend, result (hit|miss).
	CacheLookups metric.Int64Counter

	// BackendRequests counts backend calls. Attributes: backend, status
	// (success or the error kind).
	BackendRequests metric.Int64Counter

	// BackendDuration tracks backend latency in seconds. Attribute: backend.
	BackendDuration metric.Float64Histogram

	// ArchiveWrites counts archive inserts. Attribute: status (ok|error).
	ArchiveWrites metric.Int64Counter

	// HTTPRequestDuration tracks request handling time. Attributes: method,
	// route, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.CacheLookups, err = m.Int64Counter("embedapi.cache.lookups",
		metric.WithDescription("Cache lookups by backend and result."),
	); err != nil {
		return nil, err
	}
	if met.BackendRequests, err = m.Int64Counter("embedapi.backend.requests",
		metric.WithDescription("Backend embedding calls by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("embedapi.backend.duration",
		metric.WithDescription("Latency of backend embedding calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ArchiveWrites, err = m.Int64Counter("embedapi.archive.writes",
		metric.WithDescription("Embedding archive inserts by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("embedapi.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// ObserveCache registers gauges that read the cache size and capacity on
// every collection.
func (m *Metrics) ObserveCache(size, capacity func() int64) error {
	if m == nil {
		return nil
	}
	sizeGauge, err := m.meter.Int64ObservableGauge("embedapi.cache.size",
		metric.WithDescription("Entries currently held in the embedding cache."))
	if err != nil {
		return err
	}
	capGauge, err := m.meter.Int64ObservableGauge("embedapi.cache.capacity",
		metric.WithDescription("Maximum entries the embedding cache holds."))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(sizeGauge, size())
		o.ObserveInt64(capGauge, capacity())
		return nil
	}, sizeGauge, capGauge)
	return err
}

// RecordCacheLookup counts one cache read.
func (m *Metrics) RecordCacheLookup(ctx context.Context, backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("result", result),
	))
}

// RecordBackendCall counts one backend call and its latency. status is
// "success" or an error kind.
func (m *Metrics) RecordBackendCall(ctx context.Context, backend, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
	m.BackendDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("backend", backend),
	))
}

// RecordArchiveWrite counts one archive insert.
func (m *Metrics) RecordArchiveWrite(ctx context.Context, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ArchiveWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
