package gps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/checks"
	"github.com/bizmatters/field-sales/visit-guard/internal/metrics"
)

// Deductions from the starting score of 100
const (
	PenaltyMock          = 40
	PenaltyDeveloperMode = 20
	PenaltyRooted        = 50
	PenaltyLowAccuracy   = 10

	// MaxAccuracyMeters is the largest accuracy radius that is not penalized
	MaxAccuracyMeters = 100.0
	// ValidThreshold is the lowest fix score considered valid
	ValidThreshold = 60

	DefaultLocateTimeout = 12 * time.Second
)

const (
	ReasonMocked        = "mock location detected"
	ReasonDeveloperMode = "developer mode enabled"
	ReasonRooted        = "rooted or jailbroken device"
)

// Result is the verdict on one fix. TrustScore here is the fix score, not
// the agent's stored trust score.
type Result struct {
	Valid         bool     `json:"valid"`
	Unavailable   bool     `json:"unavailable"`
	Mocked        bool     `json:"mocked"`
	DeveloperMode bool     `json:"developer_mode"`
	Rooted        bool     `json:"rooted"`
	LowAccuracy   bool     `json:"low_accuracy"`
	TrustScore    int      `json:"trust_score"`
	Reasons       []string `json:"reasons"`
	Fix           *Fix     `json:"position,omitempty"`
}

// Trusted reports whether the fix may back a visit transition. Besides
// scoring valid, the fix must not be mocked and must be precise enough;
// either alone still scores 60 or more.
func (r Result) Trusted() bool {
	return r.Valid && !r.Mocked && !r.LowAccuracy
}

// Suspicious reports a fix that exists but cannot be trusted
func (r Result) Suspicious() bool {
	return !r.Unavailable && !r.Trusted()
}

// TamperDeduction sums the deductions caused by mock, developer mode and
// root signals. Low accuracy is noise, not tampering, and is excluded.
func (r Result) TamperDeduction() int {
	total := 0
	if r.Mocked {
		total += PenaltyMock
	}
	if r.DeveloperMode {
		total += PenaltyDeveloperMode
	}
	if r.Rooted {
		total += PenaltyRooted
	}
	return total
}

// Validator scores fixes. It never writes to the trust store.
type Validator struct {
	signals PlatformSignals
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.GuardMetrics
	tracer  trace.Tracer
}

// NewValidator creates a validator. A nil signals argument means no
// attestation source is wired and every device reports clean.
func NewValidator(signals PlatformSignals, timeout time.Duration, logger *slog.Logger, m *metrics.GuardMetrics) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gps_validator")
	if signals == nil {
		signals = NoSignals{}
	}
	if _, stub := signals.(NoSignals); stub {
		logger.Warn("platform signals not wired, developer mode and root detection always report false")
	}
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}
	return &Validator{
		signals: signals,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("gps-validator"),
	}
}

// Validate acquires a high accuracy fix from loc and scores it
func (v *Validator) Validate(ctx context.Context, loc Locator, agentID string) Result {
	return v.ValidateWith(ctx, loc, agentID, AccuracyHigh)
}

// ValidateWith acquires a fix at the given accuracy tier and scores it.
// If loc also implements PlatformSignals its answers replace the
// validator's default signals.
func (v *Validator) ValidateWith(ctx context.Context, loc Locator, agentID string, accuracy Accuracy) Result {
	ctx, span := v.tracer.Start(ctx, "gps.validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("gps.accuracy_tier", string(accuracy)),
	)

	fix, err := v.Locate(ctx, loc, agentID, accuracy)
	if err != nil {
		span.RecordError(err)
		v.logger.InfoContext(ctx, "no GPS fix", "agent_id", agentID, "error", err)
		res := Result{Unavailable: true, Reasons: []string{unavailableReason(err)}}
		v.metrics.RecordValidation(ctx, false, true)
		return res
	}

	signals := v.signals
	if s, ok := loc.(PlatformSignals); ok {
		signals = s
	}

	res := Result{TrustScore: 100, Reasons: []string{}, Fix: &fix}
	if fix.Mocked {
		res.Mocked = true
		res.TrustScore -= PenaltyMock
		res.Reasons = append(res.Reasons, ReasonMocked)
	}
	if checks.Soft(ctx, v.logger, "developer_mode", false, func(ctx context.Context) (bool, error) {
		return signals.DeveloperMode(ctx, agentID)
	}) {
		res.DeveloperMode = true
		res.TrustScore -= PenaltyDeveloperMode
		res.Reasons = append(res.Reasons, ReasonDeveloperMode)
	}
	if checks.Soft(ctx, v.logger, "rooted", false, func(ctx context.Context) (bool, error) {
		return signals.Rooted(ctx, agentID)
	}) {
		res.Rooted = true
		res.TrustScore -= PenaltyRooted
		res.Reasons = append(res.Reasons, ReasonRooted)
	}
	if fix.AccuracyMeters != nil && *fix.AccuracyMeters > MaxAccuracyMeters {
		res.LowAccuracy = true
		res.TrustScore -= PenaltyLowAccuracy
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("low GPS accuracy (%.0f m > %.0f m)", *fix.AccuracyMeters, MaxAccuracyMeters))
	}
	res.Valid = res.TrustScore >= ValidThreshold

	span.SetAttributes(
		attribute.Int("gps.score", res.TrustScore),
		attribute.Bool("gps.valid", res.Valid),
		attribute.Bool("gps.mocked", res.Mocked),
	)
	if !res.Trusted() {
		v.logger.WarnContext(ctx, "suspicious GPS fix",
			"agent_id", agentID, "score", res.TrustScore, "reasons", res.Reasons)
	}
	v.metrics.RecordValidation(ctx, res.Trusted(), false)
	return res
}

// Locate asks loc for a fix within the validator timeout
func (v *Validator) Locate(ctx context.Context, loc Locator, agentID string, accuracy Accuracy) (Fix, error) {
	return LocateWithin(ctx, loc, agentID, accuracy, v.timeout)
}

// LocateWithin asks loc for a fix and gives up after timeout even if loc
// ignores its context. Expiry is reported as ErrTimeout.
func LocateWithin(ctx context.Context, loc Locator, agentID string, accuracy Accuracy, timeout time.Duration) (Fix, error) {
	if loc == nil {
		return Fix{}, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		fix Fix
		err error
	}
	done := make(chan answer, 1)
	go func() {
		fix, err := loc.Locate(ctx, agentID, accuracy)
		done <- answer{fix, err}
	}()

	select {
	case a := <-done:
		if errors.Is(a.err, context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return a.fix, a.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

func unavailableReason(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "location permission denied"
	case errors.Is(err, ErrTimeout):
		return "timed out waiting for a GPS fix"
	default:
		return "GPS unavailable, enable location services"
	}
}
