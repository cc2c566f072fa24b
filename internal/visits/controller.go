// Package visits owns the visit state machine: an agent with no open visit
// may start one after passing the block gate, GPS validation and the
// coherence check; the open visit is closed with a fresh validation or,
// at a trust cost, forced closed.
package visits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/checks"
	"github.com/bizmatters/field-sales/visit-guard/internal/coherence"
	"github.com/bizmatters/field-sales/visit-guard/internal/gps"
	"github.com/bizmatters/field-sales/visit-guard/internal/metrics"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
	"github.com/bizmatters/field-sales/visit-guard/internal/trust"
)

const (
	ForcedClosePenalty = 20
	ForcedCloseReason  = "forced close with invalid GPS"
	ForcedNoteTag      = "[FORCED - INVALID GPS]"
)

// Repository is the visit storage
type Repository interface {
	CreateVisit(ctx context.Context, v models.Visit) error
	LatestPendingVisit(ctx context.Context, agentID string) (models.Visit, error)
	CloseVisit(ctx context.Context, visitID string, c models.VisitClose) error
	AppendSample(ctx context.Context, s models.LocationSample) error
}

// TrustGate is the part of the trust store the controller uses
type TrustGate interface {
	Status(ctx context.Context, agentID string) trust.Status
	ApplyPenalty(ctx context.Context, agentID string, amount int, reason string) (int, error)
}

// FixValidator scores fixes and takes plain position readings
type FixValidator interface {
	ValidateWith(ctx context.Context, loc gps.Locator, agentID string, accuracy gps.Accuracy) gps.Result
	Locate(ctx context.Context, loc gps.Locator, agentID string, accuracy gps.Accuracy) (gps.Fix, error)
}

// CoherenceChecker compares a position with the agent's history
type CoherenceChecker interface {
	Check(ctx context.Context, agentID string, pos models.Position) coherence.Result
}

// ActiveVisit is the in-memory view of an agent's open visit
type ActiveVisit struct {
	VisitID   string    `json:"visit_id"`
	ClientID  string    `json:"client_id"`
	StartTime time.Time `json:"start_time"`
}

// EndRequest closes the agent's open visit
type EndRequest struct {
	AgentID string
	Outcome models.VisitOutcome
	Notes   string
	Locator gps.Locator
	Force   bool
}

// Controller runs visit transitions for all agents
type Controller struct {
	repo      Repository
	trust     TrustGate
	validator FixValidator
	coherence CoherenceChecker
	logger    *slog.Logger
	metrics   *metrics.GuardMetrics
	tracer    trace.Tracer
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]ActiveVisit
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.GuardMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a visit controller
func NewController(repo Repository, gate TrustGate, validator FixValidator, coh CoherenceChecker, opts ...Option) *Controller {
	c := &Controller{
		repo:      repo,
		trust:     gate,
		validator: validator,
		coherence: coh,
		logger:    slog.Default(),
		tracer:    otel.Tracer("visit-controller"),
		now:       time.Now,
		sessions:  make(map[string]ActiveVisit),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "visits")
	return c
}

// Session returns the in-memory open visit without touching storage
func (c *Controller) Session(agentID string) (ActiveVisit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	av, ok := c.sessions[agentID]
	return av, ok
}

func (c *Controller) setSession(agentID string, av ActiveVisit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[agentID] = av
}

func (c *Controller) clearSession(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, agentID)
}

// RecoverActiveVisit rebuilds the in-memory state from the agent's newest
// pending visit. Calling it repeatedly without a transition in between
// returns the same visit.
func (c *Controller) RecoverActiveVisit(ctx context.Context, agentID string) (ActiveVisit, bool, error) {
	ctx, span := c.tracer.Start(ctx, "visits.recover")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	v, err := c.repo.LatestPendingVisit(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		c.clearSession(agentID)
		return ActiveVisit{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return ActiveVisit{}, false, err
	}

	av := ActiveVisit{VisitID: v.ID, ClientID: v.ClientID, StartTime: v.StartTime}
	c.setSession(agentID, av)
	span.SetAttributes(attribute.String("visit.id", v.ID))
	return av, true, nil
}

// active returns the open visit, recovering it from storage when this
// process has no session for the agent yet.
func (c *Controller) active(ctx context.Context, agentID string) (ActiveVisit, bool, error) {
	if av, ok := c.Session(agentID); ok {
		return av, true, nil
	}
	return c.RecoverActiveVisit(ctx, agentID)
}

// StartVisit opens a visit at clientID using the position from loc
func (c *Controller) StartVisit(ctx context.Context, agentID, clientID string, loc gps.Locator) (ActiveVisit, error) {
	ctx, span := c.tracer.Start(ctx, "visits.start")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("client.id", clientID),
	)

	if _, visiting, err := c.active(ctx, agentID); err != nil {
		return ActiveVisit{}, err
	} else if visiting {
		return ActiveVisit{}, ErrAlreadyVisiting
	}

	if st := c.trust.Status(ctx, agentID); st.Blocked {
		c.logger.WarnContext(ctx, "blocked agent tried to start a visit", "agent_id", agentID, "score", st.Score)
		return ActiveVisit{}, &BlockedError{Score: st.Score, Message: st.Message}
	}

	res := c.validator.ValidateWith(ctx, loc, agentID, gps.AccuracyHigh)
	if !res.Trusted() {
		return ActiveVisit{}, &GPSError{Unavailable: res.Unavailable, Reasons: res.Reasons}
	}
	pos := res.Fix.Position()
	if coh := c.coherence.Check(ctx, agentID, pos); !coh.Valid {
		return ActiveVisit{}, &GPSError{Reasons: []string{coh.Reason}}
	}

	v := models.Visit{
		ID:              uuid.NewString(),
		AgentID:         agentID,
		ClientID:        clientID,
		StartTime:       c.now().UTC(),
		Outcome:         models.VisitOutcomePending,
		CheckinPosition: &pos,
	}
	err := checks.HardExec(ctx, "create visit", func(ctx context.Context) error {
		return c.repo.CreateVisit(ctx, v)
	})
	if errors.Is(err, store.ErrPendingVisitExists) {
		if _, _, recErr := c.RecoverActiveVisit(ctx, agentID); recErr != nil {
			c.logger.WarnContext(ctx, "failed to recover visit after pending constraint",
				"agent_id", agentID, "error", recErr)
		}
		return ActiveVisit{}, ErrAlreadyVisiting
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to create visit", "agent_id", agentID, "error", err)
		return ActiveVisit{}, err
	}

	av := ActiveVisit{VisitID: v.ID, ClientID: clientID, StartTime: v.StartTime}
	c.setSession(agentID, av)
	c.metrics.RecordVisitStarted(ctx, agentID)
	c.logger.InfoContext(ctx, "visit started", "agent_id", agentID, "visit_id", v.ID, "client_id", clientID)
	return av, nil
}

// EndVisit closes the agent's open visit
func (c *Controller) EndVisit(ctx context.Context, req EndRequest) (models.Visit, error) {
	ctx, span := c.tracer.Start(ctx, "visits.end")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.Bool("visit.force", req.Force),
	)

	if !req.Outcome.Terminal() {
		return models.Visit{}, ErrInvalidOutcome
	}
	av, visiting, err := c.active(ctx, req.AgentID)
	if err != nil {
		return models.Visit{}, err
	}
	if !visiting {
		return models.Visit{}, ErrNoActiveVisit
	}
	span.SetAttributes(attribute.String("visit.id", av.VisitID))

	res := c.validator.ValidateWith(ctx, req.Locator, req.AgentID, gps.AccuracyHigh)
	gpsErr := c.closeCheck(ctx, req.AgentID, res)
	if gpsErr == nil {
		return c.close(ctx, req, av, res.Fix)
	}
	if !req.Force {
		return models.Visit{}, gpsErr
	}
	return c.forceClose(ctx, req, av, res.Fix)
}

// closeCheck runs the same pipeline as start and returns nil when the
// fix may back a normal close.
func (c *Controller) closeCheck(ctx context.Context, agentID string, res gps.Result) *GPSError {
	if !res.Trusted() {
		return &GPSError{Unavailable: res.Unavailable, CanForce: true, Reasons: res.Reasons}
	}
	if coh := c.coherence.Check(ctx, agentID, res.Fix.Position()); !coh.Valid {
		return &GPSError{CanForce: true, Reasons: []string{coh.Reason}}
	}
	return nil
}

// close persists a normal close. On a write failure the session is kept so
// the agent can retry.
func (c *Controller) close(ctx context.Context, req EndRequest, av ActiveVisit, fix *gps.Fix) (models.Visit, error) {
	end := c.now().UTC()
	pos := fix.Position()
	closing := models.VisitClose{
		EndTime:                end,
		DurationSeconds:        durationSeconds(av.StartTime, end),
		Outcome:                req.Outcome,
		Notes:                  req.Notes,
		CheckoutPosition:       &pos,
		CheckoutAccuracyMeters: fix.AccuracyMeters,
	}
	if err := checks.HardExec(ctx, "close visit", func(ctx context.Context) error {
		return c.repo.CloseVisit(ctx, av.VisitID, closing)
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to close visit", "agent_id", req.AgentID, "visit_id", av.VisitID, "error", err)
		return models.Visit{}, err
	}

	if err := c.repo.AppendSample(ctx, fix.Sample(req.AgentID, end)); err != nil {
		c.logger.WarnContext(ctx, "failed to append checkout sample", "agent_id", req.AgentID, "error", err)
	}
	c.clearSession(req.AgentID)
	c.metrics.RecordVisitClosed(ctx, req.AgentID, string(req.Outcome), false, end.Sub(av.StartTime))
	c.logger.InfoContext(ctx, "visit closed",
		"agent_id", req.AgentID, "visit_id", av.VisitID, "outcome", req.Outcome, "duration_s", closing.DurationSeconds)
	return closedVisit(req.AgentID, av, closing), nil
}

// forceClose closes the visit despite an invalid fix: the agent must not be
// blocked, pays the forced close penalty, and the visit is tagged. The
// session is cleared even when the close write fails.
func (c *Controller) forceClose(ctx context.Context, req EndRequest, av ActiveVisit, validated *gps.Fix) (models.Visit, error) {
	if st := c.trust.Status(ctx, req.AgentID); st.Blocked {
		return models.Visit{}, &BlockedError{Score: st.Score, Message: st.Message}
	}
	if _, err := c.trust.ApplyPenalty(ctx, req.AgentID, ForcedClosePenalty, ForcedCloseReason); err != nil {
		return models.Visit{}, err
	}

	end := c.now().UTC()
	closing := models.VisitClose{
		EndTime:         end,
		DurationSeconds: durationSeconds(av.StartTime, end),
		Outcome:         req.Outcome,
		Notes:           tagForced(req.Notes),
		Forced:          true,
	}
	fix, err := c.validator.Locate(ctx, req.Locator, req.AgentID, gps.AccuracyBalanced)
	switch {
	case err == nil:
		closing.CheckoutPosition, closing.CheckoutAccuracyMeters = positionOf(&fix)
	case validated != nil:
		closing.CheckoutPosition, closing.CheckoutAccuracyMeters = positionOf(validated)
	default:
		c.logger.WarnContext(ctx, "forced close without any position", "agent_id", req.AgentID, "error", err)
	}

	defer c.clearSession(req.AgentID)
	if err := checks.HardExec(ctx, "force close visit", func(ctx context.Context) error {
		return c.repo.CloseVisit(ctx, av.VisitID, closing)
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to force close visit", "agent_id", req.AgentID, "visit_id", av.VisitID, "error", err)
		return models.Visit{}, err
	}

	c.metrics.RecordVisitClosed(ctx, req.AgentID, string(req.Outcome), true, end.Sub(av.StartTime))
	c.logger.WarnContext(ctx, "visit force closed with invalid GPS",
		"agent_id", req.AgentID, "visit_id", av.VisitID, "outcome", req.Outcome)
	return closedVisit(req.AgentID, av, closing), nil
}

func positionOf(fix *gps.Fix) (*models.Position, *float64) {
	pos := fix.Position()
	return &pos, fix.AccuracyMeters
}

func tagForced(notes string) string {
	if notes == "" {
		return ForcedNoteTag
	}
	return notes + " " + ForcedNoteTag
}

func durationSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func closedVisit(agentID string, av ActiveVisit, cl models.VisitClose) models.Visit {
	end, duration := cl.EndTime, cl.DurationSeconds
	return models.Visit{
		ID:                     av.VisitID,
		AgentID:                agentID,
		ClientID:               av.ClientID,
		StartTime:              av.StartTime,
		EndTime:                &end,
		Outcome:                cl.Outcome,
		Notes:                  cl.Notes,
		DurationSeconds:        &duration,
		CheckoutPosition:       cl.CheckoutPosition,
		CheckoutAccuracyMeters: cl.CheckoutAccuracyMeters,
		Forced:                 cl.Forced,
	}
}
