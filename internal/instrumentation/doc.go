// Package instrumentation provides OpenTelemetry-based observability for
// jmapctl: metrics for JMAP method calls, retries, token refreshes, the
// session cache and device-flow polling, plus optional tracing around the
// request dispatcher.
//
// A disabled Provider hands out no-op recorders, so callers never need to
// guard metric calls:
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//	    Enabled:     true,
//	    ServiceName: "jmapctl",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordMethodCall(ctx, "Email/query", "success", elapsed)
package instrumentation
