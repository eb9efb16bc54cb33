package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys, shared across metrics for consistency.
const (
	attrMethod    = "method"
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
	attrOutcome   = "outcome"
)

// Metrics records observability metrics for the JMAP client and the OAuth
// flows. The zero value is a no-op recorder.
type Metrics struct {
	methodCallsTotal   metric.Int64Counter
	methodCallDuration metric.Float64Histogram
	retriesTotal       metric.Int64Counter

	tokenRefreshTotal    metric.Int64Counter
	deviceFlowPollsTotal metric.Int64Counter

	sessionCacheTotal metric.Int64Counter
	blobBytesTotal    metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments registered on
// the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.methodCallsTotal, err = meter.Int64Counter(
		"jmap_method_calls_total",
		metric.WithDescription("Total number of JMAP method calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jmap_method_calls_total counter: %w", err)
	}

	m.methodCallDuration, err = meter.Float64Histogram(
		"jmap_method_call_duration_seconds",
		metric.WithDescription("JMAP method call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jmap_method_call_duration_seconds histogram: %w", err)
	}

	m.retriesTotal, err = meter.Int64Counter(
		"jmap_transport_retries_total",
		metric.WithDescription("Total number of transient-fault retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jmap_transport_retries_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.deviceFlowPollsTotal, err = meter.Int64Counter(
		"oauth_device_flow_polls_total",
		metric.WithDescription("Total number of device-flow token polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_device_flow_polls_total counter: %w", err)
	}

	m.sessionCacheTotal, err = meter.Int64Counter(
		"jmap_session_cache_total",
		metric.WithDescription("Session cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jmap_session_cache_total counter: %w", err)
	}

	m.blobBytesTotal, err = meter.Int64Counter(
		"jmap_blob_bytes_total",
		metric.WithDescription("Bytes transferred through blob download/upload"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jmap_blob_bytes_total counter: %w", err)
	}

	return m, nil
}

// RecordMethodCall records one JMAP method call with its result status
// ("success" or "error") and duration.
func (m *Metrics) RecordMethodCall(ctx context.Context, method, status string, duration time.Duration) {
	if m == nil || m.methodCallsTotal == nil || m.methodCallDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, status),
	}
	m.methodCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.methodCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry records one transient-fault retry for the named operation.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	if m == nil || m.retriesTotal == nil {
		return
	}
	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordTokenRefresh records an OAuth token refresh attempt.
// Result should be "success", "failure" or "expired".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordDeviceFlowPoll records one device-flow poll with its OAuth outcome
// (e.g. "authorization_pending", "slow_down", "success").
func (m *Metrics) RecordDeviceFlowPoll(ctx context.Context, outcome string) {
	if m == nil || m.deviceFlowPollsTotal == nil {
		return
	}
	m.deviceFlowPollsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOutcome, outcome),
	))
}

// RecordSessionCache records a session cache lookup outcome ("hit"/"miss").
func (m *Metrics) RecordSessionCache(ctx context.Context, hit bool) {
	if m == nil || m.sessionCacheTotal == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.sessionCacheTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOutcome, outcome),
	))
}

// RecordBlobBytes records bytes moved by a blob transfer.
// Direction is "download" or "upload".
func (m *Metrics) RecordBlobBytes(ctx context.Context, direction string, n int64) {
	if m == nil || m.blobBytesTotal == nil {
		return
	}
	m.blobBytesTotal.Add(ctx, n, metric.WithAttributes(
		attribute.String(attrOperation, direction),
	))
}
