package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrIntent  = attribute.Key("intent")
	attrTrigger = attribute.Key("trigger")
	attrOutcome = attribute.Key("outcome")
)

// Metrics holds the workflow instruments. A nil *Metrics records nothing.
type Metrics struct {
	transitions   metric.Int64Counter
	sweepLeads    metric.Int64Counter
	sweepRuns     metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

// NewMetrics creates the workflow instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	transitions, err := meter.Int64Counter("leadflow_workflow_transitions_total",
		metric.WithDescription("Committed workflow transitions by intent."))
	if err != nil {
		return nil, err
	}
	sweepLeads, err := meter.Int64Counter("leadflow_sweep_leads_total",
		metric.WithDescription("Leads visited by escalation sweeps by outcome."))
	if err != nil {
		return nil, err
	}
	sweepRuns, err := meter.Int64Counter("leadflow_sweep_runs_total",
		metric.WithDescription("Escalation sweeps by trigger and outcome."))
	if err != nil {
		return nil, err
	}
	sweepDuration, err := meter.Float64Histogram("leadflow_sweep_duration_seconds",
		metric.WithDescription("Wall time of escalation sweeps."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		transitions:   transitions,
		sweepLeads:    sweepLeads,
		sweepRuns:     sweepRuns,
		sweepDuration: sweepDuration,
	}, nil
}

func (m *Metrics) recordTransition(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrIntent.String(intent)))
}

func (m *Metrics) recordSweepLead(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.sweepLeads.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}

func (m *Metrics) recordSweep(ctx context.Context, trigger, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attrTrigger.String(trigger), attrOutcome.String(outcome))
	m.sweepRuns.Add(ctx, 1, attrs)
	m.sweepDuration.Record(ctx, took.Seconds(), attrs)
}
