package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

// Memory is a process-local store with the same semantics as Postgres,
// including the single pending visit constraint and the timestamp guard on
// live positions.
type Memory struct {
	mu       sync.RWMutex
	scores   map[string]int
	samples  map[string][]models.LocationSample
	events   []models.LocationEvent
	visits   map[string]models.Visit
	live     map[string]models.LivePosition
	prefs    map[string]bool
	failNext map[string]error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		scores:   make(map[string]int),
		samples:  make(map[string][]models.LocationSample),
		visits:   make(map[string]models.Visit),
		live:     make(map[string]models.LivePosition),
		prefs:    make(map[string]bool),
		failNext: make(map[string]error),
	}
}

// FailNext makes the next call of the named operation return err.
// Operation names match the method names.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

func (m *Memory) injected(op string) error {
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return nil
}

// SetTrustScore seeds an agent's score
func (m *Memory) SetTrustScore(agentID string, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[agentID] = score
}

// TrustScore returns the stored score or ErrNotFound
func (m *Memory) TrustScore(ctx context.Context, agentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TrustScore"); err != nil {
		return 0, err
	}
	score, ok := m.scores[agentID]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

// DeductTrust lowers the score by amount, floored at zero, and appends an
// anomaly event in the same critical section.
func (m *Memory) DeductTrust(ctx context.Context, agentID string, amount int, reason PenaltyReason) (int, int, error) {
	if amount < 0 {
		return 0, 0, ErrInvalidPenalty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeductTrust"); err != nil {
		return 0, 0, err
	}

	old, ok := m.scores[agentID]
	if !ok {
		old = DefaultTrustScore
	}
	next := clampPenalty(old, amount)
	m.scores[agentID] = next
	m.events = append(m.events, models.LocationEvent{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		EventType: models.LocationEventAnomaly,
		Reason:    reason(old, next),
		Timestamp: time.Now().UTC(),
	})
	return old, next, nil
}

// ListTrust returns all trust records ordered by ascending score
func (m *Memory) ListTrust(ctx context.Context) ([]models.AgentTrust, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AgentTrust, 0, len(m.scores))
	for id, score := range m.scores {
		out = append(out, models.AgentTrust{AgentID: id, TrustScore: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrustScore != out[j].TrustScore {
			return out[i].TrustScore < out[j].TrustScore
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

// AppendSample adds a sample to the agent's history
func (m *Memory) AppendSample(ctx context.Context, s models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("AppendSample"); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Timestamp = utc(s.Timestamp)
	m.samples[s.AgentID] = append(m.samples[s.AgentID], s)
	return nil
}

// LatestSample returns the agent's newest sample by timestamp
func (m *Memory) LatestSample(ctx context.Context, agentID string) (models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("LatestSample"); err != nil {
		return models.LocationSample{}, err
	}
	history := m.samples[agentID]
	if len(history) == 0 {
		return models.LocationSample{}, ErrNotFound
	}
	latest := history[0]
	for _, s := range history[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, nil
}

// Samples returns a copy of an agent's history in insertion order
func (m *Memory) Samples(agentID string) []models.LocationSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.LocationSample(nil), m.samples[agentID]...)
}

// AppendEvent adds an entry to the audit log
func (m *Memory) AppendEvent(ctx context.Context, e models.LocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("AppendEvent"); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Timestamp = utc(e.Timestamp)
	m.events = append(m.events, e)
	return nil
}

// Events returns the audit entries of one agent in insertion order
func (m *Memory) Events(agentID string) []models.LocationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LocationEvent
	for _, e := range m.events {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}

// SetLivePosition writes the agent's current position unless a newer write
// has already landed. A nil position hides the agent and wins over a
// position carrying the same timestamp.
func (m *Memory) SetLivePosition(ctx context.Context, agentID string, pos *models.Position, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SetLivePosition"); err != nil {
		return err
	}
	at = utc(at)
	if cur, ok := m.live[agentID]; ok && staleLiveWrite(cur, pos, at) {
		return nil
	}
	m.live[agentID] = models.LivePosition{AgentID: agentID, Position: pos, UpdatedAt: at}
	return nil
}

// LivePositions returns every agent currently visible on live views
func (m *Memory) LivePositions(ctx context.Context) ([]models.LivePosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LivePosition
	for _, lp := range m.live {
		if lp.Position != nil {
			out = append(out, lp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// LivePosition returns one agent's live field
func (m *Memory) LivePosition(agentID string) (models.LivePosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lp, ok := m.live[agentID]
	return lp, ok
}

// CreateVisit inserts a pending visit, enforcing one pending visit per agent
func (m *Memory) CreateVisit(ctx context.Context, v models.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateVisit"); err != nil {
		return err
	}
	for _, existing := range m.visits {
		if existing.AgentID == v.AgentID && existing.Outcome == models.VisitOutcomePending {
			return ErrPendingVisitExists
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	m.visits[v.ID] = v
	return nil
}

// LatestPendingVisit returns the agent's most recent open visit
func (m *Memory) LatestPendingVisit(ctx context.Context, agentID string) (models.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("LatestPendingVisit"); err != nil {
		return models.Visit{}, err
	}
	var (
		found  bool
		latest models.Visit
	)
	for _, v := range m.visits {
		if v.AgentID != agentID || v.Outcome != models.VisitOutcomePending {
			continue
		}
		if !found || v.StartTime.After(latest.StartTime) {
			latest, found = v, true
		}
	}
	if !found {
		return models.Visit{}, ErrNotFound
	}
	return latest, nil
}

// CloseVisit moves a pending visit to a terminal outcome
func (m *Memory) CloseVisit(ctx context.Context, visitID string, c models.VisitClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CloseVisit"); err != nil {
		return err
	}
	v, ok := m.visits[visitID]
	if !ok || v.Outcome != models.VisitOutcomePending {
		return ErrNotFound
	}
	end := c.EndTime
	duration := c.DurationSeconds
	v.EndTime = &end
	v.DurationSeconds = &duration
	v.Outcome = c.Outcome
	v.Notes = c.Notes
	v.CheckoutPosition = c.CheckoutPosition
	v.CheckoutAccuracyMeters = c.CheckoutAccuracyMeters
	v.Forced = c.Forced
	m.visits[visitID] = v
	return nil
}

// Visit returns a visit by id
func (m *Memory) Visit(visitID string) (models.Visit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visits[visitID]
	return v, ok
}

// Visits returns every visit of an agent
func (m *Memory) Visits(agentID string) []models.Visit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Visit
	for _, v := range m.visits {
		if v.AgentID == agentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// TrackingEnabled reads the persisted tracking flag
func (m *Memory) TrackingEnabled(ctx context.Context, agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TrackingEnabled"); err != nil {
		return false, err
	}
	return m.prefs[agentID], nil
}

// SetTrackingEnabled writes the persisted tracking flag
func (m *Memory) SetTrackingEnabled(ctx context.Context, agentID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SetTrackingEnabled"); err != nil {
		return err
	}
	m.prefs[agentID] = enabled
	return nil
}

// TrackingAgents lists agents whose tracking flag is set
func (m *Memory) TrackingAgents(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, on := range m.prefs {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
