package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelInstruments mirrors the Prometheus collectors onto an OpenTelemetry meter
type otelInstruments struct {
	decisions       metric.Int64Counter
	decisionLatency metric.Float64Histogram
	violations      metric.Int64Counter
	mutations       metric.Int64Counter
	purged          metric.Int64Counter
	storeErrors     metric.Int64Counter
	reloads         metric.Int64Counter
}

// MirrorToOTel records every subsequent measurement on meter as well.
// Call it before the metrics are handed to other components.
func (m *Metrics) MirrorToOTel(meter metric.Meter) error {
	if m == nil {
		return nil
	}

	var (
		inst otelInstruments
		err  error
	)

	inst.decisions, err = meter.Int64Counter(
		"lmsauthz.decisions",
		metric.WithDescription("Authorization decisions by operation and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create decisions counter: %w", err)
	}

	inst.decisionLatency, err = meter.Float64Histogram(
		"lmsauthz.decision.duration",
		metric.WithDescription("Authorization decision latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	inst.violations, err = meter.Int64Counter(
		"lmsauthz.contract_violations",
		metric.WithDescription("Calls rejected for invalid arguments"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create contract violations counter: %w", err)
	}

	inst.mutations, err = meter.Int64Counter(
		"lmsauthz.assignment.mutations",
		metric.WithDescription("Role assignment changes by operation and status"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment mutations counter: %w", err)
	}

	inst.purged, err = meter.Int64Counter(
		"lmsauthz.assignments.purged",
		metric.WithDescription("Expired assignments removed by the sweeper"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create purged counter: %w", err)
	}

	inst.storeErrors, err = meter.Int64Counter(
		"lmsauthz.store.errors",
		metric.WithDescription("Failed assignment store calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store errors counter: %w", err)
	}

	inst.reloads, err = meter.Int64Counter(
		"lmsauthz.catalog.reloads",
		metric.WithDescription("Definition table reload attempts by status"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog reloads counter: %w", err)
	}

	m.otel = &inst
	return nil
}

func (i *otelInstruments) decision(operation, outcome string, seconds float64) {
	ctx := context.Background()
	op := attribute.String("operation", operation)
	i.decisions.Add(ctx, 1, metric.WithAttributes(op, attribute.String("outcome", outcome)))
	i.decisionLatency.Record(ctx, seconds, metric.WithAttributes(op))
}

func (i *otelInstruments) add(counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	counter.Add(context.Background(), n, metric.WithAttributes(attrs...))
}
