// Package tracking runs the background location sampler. Each agent with
// tracking enabled gets a cron entry that samples the device, appends the
// sample to history and mirrors it onto the agent's live position. The
// enabled flag is persisted so Initialize can resume sampling after a
// restart.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/checks"
	"github.com/bizmatters/field-sales/visit-guard/internal/gps"
	"github.com/bizmatters/field-sales/visit-guard/internal/metrics"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

const DefaultInterval = 30 * time.Second

// ErrPermissionRequired is returned by Enable when no fix can be taken
var ErrPermissionRequired = errors.New("location permission required")

// Preferences persists the per-agent tracking flag
type Preferences interface {
	TrackingEnabled(ctx context.Context, agentID string) (bool, error)
	SetTrackingEnabled(ctx context.Context, agentID string, enabled bool) error
	TrackingAgents(ctx context.Context) ([]string, error)
}

// Recorder is the history, audit and live position storage
type Recorder interface {
	AppendSample(ctx context.Context, s models.LocationSample) error
	AppendEvent(ctx context.Context, e models.LocationEvent) error
	SetLivePosition(ctx context.Context, agentID string, pos *models.Position, at time.Time) error
}

// Publisher fans live position changes out to watchers
type Publisher interface {
	Publish(lp models.LivePosition)
}

// Service owns the sampler schedule
type Service struct {
	prefs     Preferences
	recorder  Recorder
	locator   gps.Locator
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.GuardMetrics
	tracer    trace.Tracer
	now       func() time.Time

	interval      time.Duration
	locateTimeout time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Option configures a Service
type Option func(*Service)

// WithInterval sets the sampling period. cron resolution is one second.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithLocateTimeout bounds each position request
func WithLocateTimeout(d time.Duration) Option {
	return func(s *Service) { s.locateTimeout = d }
}

// WithPublisher sets where live position changes are sent
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.GuardMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a tracking service. Call Start to begin ticking.
func NewService(prefs Preferences, recorder Recorder, locator gps.Locator, opts ...Option) *Service {
	s := &Service{
		prefs:         prefs,
		recorder:      recorder,
		locator:       locator,
		logger:        slog.Default(),
		tracer:        otel.Tracer("tracking-service"),
		now:           time.Now,
		interval:      DefaultInterval,
		locateTimeout: gps.DefaultLocateTimeout,
		entries:       make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tracking")
	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Start begins running scheduled ticks
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context that is done once ticks
// already in flight have finished.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// IsEnabled reads the persisted flag; an unreadable flag counts as off
func (s *Service) IsEnabled(ctx context.Context, agentID string) bool {
	return checks.Soft(ctx, s.logger, "tracking_enabled", false, func(ctx context.Context) (bool, error) {
		return s.prefs.TrackingEnabled(ctx, agentID)
	})
}

// Running reports whether this process has a schedule entry for the agent
func (s *Service) Running(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[agentID]
	return ok
}

// Enable turns tracking on. It first takes a fix from loc (the service
// locator when loc is nil); without one nothing is changed and
// ErrPermissionRequired is returned. Then it persists the flag, records an
// enabled event, stores the fix as the first sample and schedules ticks.
// The flag is turned back off when the event cannot be recorded.
func (s *Service) Enable(ctx context.Context, agentID string, loc gps.Locator) error {
	ctx, span := s.tracer.Start(ctx, "tracking.enable")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	if loc == nil {
		loc = s.locator
	}
	fix, err := gps.LocateWithin(ctx, loc, agentID, gps.AccuracyHigh, s.locateTimeout)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrPermissionRequired, err)
	}

	if err := checks.HardExec(ctx, "persist tracking flag", func(ctx context.Context) error {
		return s.prefs.SetTrackingEnabled(ctx, agentID, true)
	}); err != nil {
		return err
	}
	pos := fix.Position()
	if err := checks.HardExec(ctx, "record enabled event", func(ctx context.Context) error {
		return s.recorder.AppendEvent(ctx, models.LocationEvent{
			AgentID:   agentID,
			EventType: models.LocationEventEnabled,
			Position:  &pos,
			Reason:    "tracking enabled",
			Timestamp: s.now(),
		})
	}); err != nil {
		if rbErr := s.prefs.SetTrackingEnabled(ctx, agentID, false); rbErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back tracking flag", "agent_id", agentID, "error", rbErr)
		}
		return err
	}

	s.record(ctx, agentID, fix, s.now())
	if err := s.schedule(agentID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tracking enabled", "agent_id", agentID)
	return nil
}

// Disable turns tracking off, records the reason and hides the agent from
// live views. The live position is cleared with the current time so that a
// tick already in flight cannot put it back.
func (s *Service) Disable(ctx context.Context, agentID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "tracking.disable")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	s.unschedule(agentID)

	if err := checks.HardExec(ctx, "persist tracking flag", func(ctx context.Context) error {
		return s.prefs.SetTrackingEnabled(ctx, agentID, false)
	}); err != nil {
		return err
	}
	at := s.now()
	if err := checks.HardExec(ctx, "record disabled event", func(ctx context.Context) error {
		return s.recorder.AppendEvent(ctx, models.LocationEvent{
			AgentID:   agentID,
			EventType: models.LocationEventDisabled,
			Reason:    reason,
			Timestamp: at,
		})
	}); err != nil {
		return err
	}
	if err := checks.HardExec(ctx, "clear live position", func(ctx context.Context) error {
		return s.recorder.SetLivePosition(ctx, agentID, nil, at)
	}); err != nil {
		return err
	}
	s.publish(models.LivePosition{AgentID: agentID, UpdatedAt: at})
	s.logger.InfoContext(ctx, "tracking disabled", "agent_id", agentID, "reason", reason)
	return nil
}

// Initialize resumes sampling for every agent whose flag is persisted on
func (s *Service) Initialize(ctx context.Context) error {
	agents, err := checks.Hard(ctx, "list tracking agents", s.prefs.TrackingAgents)
	if err != nil {
		return err
	}
	for _, agentID := range agents {
		if err := s.schedule(agentID); err != nil {
			return err
		}
	}
	s.logger.InfoContext(ctx, "tracking initialized", "agents", len(agents))
	return nil
}

// Tick takes one sample for the agent. Failures are logged and the
// schedule continues; a flag turned off elsewhere stops the schedule.
func (s *Service) Tick(ctx context.Context, agentID string) {
	ctx, span := s.tracer.Start(ctx, "tracking.tick")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	// stamped before locating so a Disable during acquisition is newer
	at := s.now()
	if !s.stillEnabled(ctx, agentID) {
		return
	}

	fix, err := gps.LocateWithin(ctx, s.locator, agentID, gps.AccuracyHigh, s.locateTimeout)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "tracking tick got no fix", "agent_id", agentID, "error", err)
		s.metrics.RecordTick(ctx, "failed")
		return
	}
	if !s.stillEnabled(ctx, agentID) {
		return
	}
	if s.record(ctx, agentID, fix, at) {
		s.metrics.RecordTick(ctx, "ok")
	} else {
		s.metrics.RecordTick(ctx, "failed")
	}
}

// stillEnabled re-reads the persisted flag and stops the schedule when it
// was turned off, by Disable or elsewhere.
func (s *Service) stillEnabled(ctx context.Context, agentID string) bool {
	enabled, err := s.prefs.TrackingEnabled(ctx, agentID)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		s.logger.WarnContext(ctx, "tracking tick could not read flag", "agent_id", agentID, "error", err)
		s.metrics.RecordTick(ctx, "failed")
		return false
	}
	if !enabled {
		s.unschedule(agentID)
		s.logger.InfoContext(ctx, "tracking disabled, dropping sampler tick", "agent_id", agentID)
		s.metrics.RecordTick(ctx, "stopped")
		return false
	}
	return true
}

// record appends the sample and mirrors it onto the live position
func (s *Service) record(ctx context.Context, agentID string, fix gps.Fix, at time.Time) bool {
	if err := s.recorder.AppendSample(ctx, fix.Sample(agentID, at)); err != nil {
		s.logger.WarnContext(ctx, "failed to append location sample", "agent_id", agentID, "error", err)
		return false
	}
	pos := fix.Position()
	if err := s.recorder.SetLivePosition(ctx, agentID, &pos, at); err != nil {
		s.logger.WarnContext(ctx, "failed to mirror live position", "agent_id", agentID, "error", err)
		return false
	}
	s.publish(models.LivePosition{AgentID: agentID, Position: &pos, UpdatedAt: at})
	return true
}

func (s *Service) publish(lp models.LivePosition) {
	if s.publisher != nil {
		s.publisher.Publish(lp)
	}
}

func (s *Service) schedule(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[agentID]; ok {
		return nil
	}
	id, err := s.cron.AddJob(fmt.Sprintf("@every %s", s.interval), cron.FuncJob(func() {
		s.Tick(context.Background(), agentID)
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule tracking for %s: %w", agentID, err)
	}
	s.entries[agentID] = id
	s.metrics.RecordTrackingToggled(context.Background(), true)
	return nil
}

func (s *Service) unschedule(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[agentID]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, agentID)
	s.metrics.RecordTrackingToggled(context.Background(), false)
}

// cronLogger routes scheduler messages to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
