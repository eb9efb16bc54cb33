package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// recordEverything calls every recorder method once.
func recordEverything(ctx context.Context, m *Metrics) {
	m.RecordMethodCall(ctx, "Email/query", "success", 120*time.Millisecond)
	m.RecordRetry(ctx, "jmap.Email/query")
	m.RecordTokenRefresh(ctx, "success")
	m.RecordDeviceFlowPoll(ctx, "authorization_pending")
	m.RecordSessionCache(ctx, true)
	m.RecordSessionCache(ctx, false)
	m.RecordBlobBytes(ctx, "download", 42)
}

func TestMetricsZeroValueIsNoOp(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	recordEverything(ctx, nilMetrics)

	recordEverything(ctx, &Metrics{})
}

func TestMetricsRecordsInstruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	metrics, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	recordEverything(ctx, metrics)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	for _, name := range []string{
		"jmap_method_calls_total",
		"jmap_method_call_duration_seconds",
		"jmap_transport_retries_total",
		"oauth_token_refresh_total",
		"oauth_device_flow_polls_total",
		"jmap_session_cache_total",
		"jmap_blob_bytes_total",
	} {
		assert.Contains(t, byName, name)
	}

	blob, ok := byName["jmap_blob_bytes_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, blob.DataPoints, 1)
	assert.Equal(t, int64(42), blob.DataPoints[0].Value)

	cache, ok := byName["jmap_session_cache_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, cache.DataPoints, 2, "hit and miss outcomes are separate series")
}
