// Package coherence rejects positions that cannot follow physically from the
// agent's previous sample: sustained ground speed over 120 km/h, or a jump of
// more than 50 km in under five minutes.
package coherence

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
	"github.com/bizmatters/field-sales/visit-guard/internal/geo"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

const (
	MaxSpeedKmh        = 120.0
	TeleportDistanceKm = 50.0
	TeleportWindow     = 5 * time.Minute
)

// History returns the agent's newest location sample
type History interface {
	LatestSample(ctx context.Context, agentID string) (models.LocationSample, error)
}

// Result is the coherence verdict. SpeedKmh is nil when it could not be
// derived (first sample, or no time elapsed).
type Result struct {
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	DistanceKm float64  `json:"distance_km"`
}

// Checker compares positions against stored history
type Checker struct {
	history History
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures a Checker
type Option func(*Checker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// NewChecker creates a coherence checker
func NewChecker(history History, logger *slog.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{
		history: history,
		logger:  logger.With("component", "coherence"),
		now:     time.Now,
		tracer:  otel.Tracer("coherence-checker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check evaluates pos against the agent's newest sample. Lookup failures
// pass: this check only reads history and never blocks an agent because
// the history itself is broken.
func (c *Checker) Check(ctx context.Context, agentID string, pos models.Position) Result {
	ctx, span := c.tracer.Start(ctx, "coherence.check")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	res := checks.Soft(ctx, c.logger, "coherence", Result{Valid: true}, func(ctx context.Context) (Result, error) {
		prev, err := c.history.LatestSample(ctx, agentID)
		if errors.Is(err, store.ErrNotFound) {
			return Result{Valid: true}, nil
		}
		if err != nil {
			return Result{}, err
		}
		return Evaluate(prev.Position, prev.Timestamp, pos, c.now()), nil
	})

	span.SetAttributes(attribute.Bool("coherence.valid", res.Valid))
	if !res.Valid {
		c.logger.WarnContext(ctx, "incoherent position",
			"agent_id", agentID, "reason", res.Reason, "distance_km", res.DistanceKm)
	}
	return res
}

// Evaluate is the pure rule: the teleport gate is checked first so a single
// jump is reported as a teleport rather than as speed.
func Evaluate(prev models.Position, prevAt time.Time, cur models.Position, now time.Time) Result {
	distance := geo.DistanceKm(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
	elapsed := now.Sub(prevAt)
	res := Result{Valid: true, DistanceKm: distance}

	if elapsed > 0 {
		speed := distance / elapsed.Hours()
		res.SpeedKmh = &speed
	}

	if IsTeleport(distance, elapsed) {
		res.Valid = false
		res.Reason = fmt.Sprintf("location teleport: %.1f km in %s", distance, elapsed.Round(time.Second))
		return res
	}
	if res.SpeedKmh != nil && IsImplausibleSpeed(*res.SpeedKmh) {
		res.Valid = false
		res.Reason = fmt.Sprintf("implausible speed: %.1f km/h", *res.SpeedKmh)
	}
	return res
}

// IsImplausibleSpeed reports whether speedKmh is faster than ground travel
func IsImplausibleSpeed(speedKmh float64) bool {
	return speedKmh > MaxSpeedKmh
}

// IsTeleport reports a jump too far for the time that passed
func IsTeleport(distanceKm float64, elapsed time.Duration) bool {
	return distanceKm > TeleportDistanceKm && elapsed < TeleportWindow
}
