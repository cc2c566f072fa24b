package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("visit-guard")

// GuardMetrics provides metrics collection for GPS validation, trust
// penalties, visits and background tracking. A nil *GuardMetrics is valid
// and records nothing.
type GuardMetrics struct {
	validationsCounter   metric.Int64Counter
	penaltyPointsCounter metric.Int64Counter
	visitsStartedCounter metric.Int64Counter
	visitsClosedCounter  metric.Int64Counter
	visitDurationHist    metric.Float64Histogram
	visitsActiveGauge    metric.Int64UpDownCounter
	trackingTicksCounter metric.Int64Counter
	trackedAgentsGauge   metric.Int64UpDownCounter
}

// NewGuardMetrics creates a new metrics collector
func NewGuardMetrics() (*GuardMetrics, error) {
	validationsCounter, err := meter.Int64Counter(
		"visit_guard.gps.validations",
		metric.WithDescription("Total number of GPS fix validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, err
	}

	penaltyPointsCounter, err := meter.Int64Counter(
		"visit_guard.trust.penalty_points",
		metric.WithDescription("Trust score points deducted from agents"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, err
	}

	visitsStartedCounter, err := meter.Int64Counter(
		"visit_guard.visits.started",
		metric.WithDescription("Total number of visits started"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		return nil, err
	}

	visitsClosedCounter, err := meter.Int64Counter(
		"visit_guard.visits.closed",
		metric.WithDescription("Total number of visits closed"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		return nil, err
	}

	visitDurationHist, err := meter.Float64Histogram(
		"visit_guard.visit.duration",
		metric.WithDescription("Duration of closed visits in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	visitsActiveGauge, err := meter.Int64UpDownCounter(
		"visit_guard.visits.active",
		metric.WithDescription("Number of currently open visits"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		return nil, err
	}

	trackingTicksCounter, err := meter.Int64Counter(
		"visit_guard.tracking.ticks",
		metric.WithDescription("Background location sampler ticks by result"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	trackedAgentsGauge, err := meter.Int64UpDownCounter(
		"visit_guard.tracking.agents",
		metric.WithDescription("Number of agents with tracking enabled in this process"),
		metric.WithUnit("{agent}"),
	)
	if err != nil {
		return nil, err
	}

	return &GuardMetrics{
		validationsCounter:   validationsCounter,
		penaltyPointsCounter: penaltyPointsCounter,
		visitsStartedCounter: visitsStartedCounter,
		visitsClosedCounter:  visitsClosedCounter,
		visitDurationHist:    visitDurationHist,
		visitsActiveGauge:    visitsActiveGauge,
		trackingTicksCounter: trackingTicksCounter,
		trackedAgentsGauge:   trackedAgentsGauge,
	}, nil
}

// RecordValidation records the verdict of one GPS validation
func (gm *GuardMetrics) RecordValidation(ctx context.Context, valid, unavailable bool) {
	if gm == nil {
		return
	}
	gm.validationsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Bool("gps.valid", valid),
			attribute.Bool("gps.unavailable", unavailable),
		),
	)
}

// RecordPenalty records points deducted from an agent's trust score
func (gm *GuardMetrics) RecordPenalty(ctx context.Context, agentID string, points int, blocked bool) {
	if gm == nil {
		return
	}
	gm.penaltyPointsCounter.Add(ctx, int64(points),
		metric.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Bool("agent.blocked", blocked),
		),
	)
}

// RecordVisitStarted records a visit entering the pending state
func (gm *GuardMetrics) RecordVisitStarted(ctx context.Context, agentID string) {
	if gm == nil {
		return
	}
	gm.visitsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent.id", agentID)),
	)
	gm.visitsActiveGauge.Add(ctx, 1)
}

// RecordVisitClosed records a visit reaching a terminal outcome
func (gm *GuardMetrics) RecordVisitClosed(ctx context.Context, agentID, outcome string, forced bool, duration time.Duration) {
	if gm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("visit.outcome", outcome),
		attribute.Bool("visit.forced", forced),
	)
	gm.visitsClosedCounter.Add(ctx, 1, attrs)
	gm.visitDurationHist.Record(ctx, duration.Seconds(), attrs)
	gm.visitsActiveGauge.Add(ctx, -1)
}

// RecordTick records one sampler tick; result is "ok", "failed" or "stopped"
func (gm *GuardMetrics) RecordTick(ctx context.Context, result string) {
	if gm == nil {
		return
	}
	gm.trackingTicksCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("tick.result", result)),
	)
}

// RecordTrackingToggled adjusts the tracked agents gauge
func (gm *GuardMetrics) RecordTrackingToggled(ctx context.Context, enabled bool) {
	if gm == nil {
		return
	}
	delta := int64(1)
	if !enabled {
		delta = -1
	}
	gm.trackedAgentsGauge.Add(ctx, delta)
}
