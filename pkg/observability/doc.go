// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing
// for the authorization engine.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Warn("assignment store unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision("has_permission", true, start)
//	mux.Handle("/metrics", observability.Handler(registry))
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:       true,
//		Endpoint:      "otel-collector:4317",
//		ServiceName:   "lmsauthz",
//		Insecure:      true,
//		MetricsExport: true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// With metric export on, mirror the Prometheus collectors onto the meter:
//
//	metrics.MirrorToOTel(providers.MeterProvider.Meter("lmsauthz"))
package observability
