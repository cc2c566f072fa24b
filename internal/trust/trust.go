// Package trust keeps the per-agent trust score: reads fail open to the
// default, penalties are clamped decrements with an audit event, and agents
// under the block threshold may not start or force-close visits.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/checks"
	"github.com/bizmatters/field-sales/visit-guard/internal/metrics"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

const (
	// DefaultScore is assumed for agents without a readable record
	DefaultScore = store.DefaultTrustScore
	// BlockThreshold is the lowest score that is not blocked.
	// TODO: make this a per-tenant setting once tenants exist in the schema.
	BlockThreshold = 60
)

// Repository is the persistence the trust store needs
type Repository interface {
	TrustScore(ctx context.Context, agentID string) (int, error)
	DeductTrust(ctx context.Context, agentID string, amount int, reason store.PenaltyReason) (int, int, error)
}

// Status is the result of the block gate
type Status struct {
	AgentID string `json:"agent_id"`
	Blocked bool   `json:"blocked"`
	Score   int    `json:"trust_score"`
	Message string `json:"message,omitempty"`
}

// Store reads and debits trust scores
type Store struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.GuardMetrics
	tracer  trace.Tracer
}

// NewStore creates a trust store
func NewStore(repo Repository, logger *slog.Logger, m *metrics.GuardMetrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:    repo,
		logger:  logger.With("component", "trust"),
		metrics: m,
		tracer:  otel.Tracer("trust-store"),
	}
}

// IsBlocked reports whether a score is under the block threshold
func IsBlocked(score int) bool {
	return score < BlockThreshold
}

// Score returns the agent's trust score, or DefaultScore when it cannot be
// read so a backend hiccup never blocks anyone.
func (s *Store) Score(ctx context.Context, agentID string) int {
	ctx, span := s.tracer.Start(ctx, "trust.score")
	defer span.End()

	score := checks.Soft(ctx, s.logger, "trust_score", DefaultScore, func(ctx context.Context) (int, error) {
		score, err := s.repo.TrustScore(ctx, agentID)
		if errors.Is(err, store.ErrNotFound) {
			return DefaultScore, nil
		}
		return score, err
	})
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("trust.score", score),
	)
	return score
}

// ApplyPenalty debits amount points, floored at zero, and returns the new
// score. This is the only path that changes a score.
func (s *Store) ApplyPenalty(ctx context.Context, agentID string, amount int, reason string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "trust.apply_penalty")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("penalty.amount", amount),
	)

	var oldScore int
	newScore, err := checks.Hard(ctx, "apply trust penalty", func(ctx context.Context) (int, error) {
		old, next, err := s.repo.DeductTrust(ctx, agentID, amount, func(old, next int) string {
			return fmt.Sprintf("%s (trust %d -> %d)", reason, old, next)
		})
		oldScore = old
		return next, err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to apply trust penalty",
			"agent_id", agentID, "amount", amount, "reason", reason, "error", err)
		return 0, err
	}

	s.metrics.RecordPenalty(ctx, agentID, oldScore-newScore, IsBlocked(newScore))
	s.logger.WarnContext(ctx, "trust penalty applied",
		"agent_id", agentID, "amount", amount, "reason", reason,
		"old_score", oldScore, "new_score", newScore, "blocked", IsBlocked(newScore))
	span.SetAttributes(attribute.Int("trust.score", newScore))
	return newScore, nil
}

// Status runs the block gate for an agent
func (s *Store) Status(ctx context.Context, agentID string) Status {
	score := s.Score(ctx, agentID)
	st := Status{AgentID: agentID, Score: score, Blocked: IsBlocked(score)}
	if st.Blocked {
		st.Message = BlockedMessage(score)
	}
	return st
}

// BlockedMessage is shown verbatim to blocked agents
func BlockedMessage(score int) string {
	return fmt.Sprintf("Your account is blocked for suspicious GPS activity (trust score %d/100, minimum %d). Contact your supervisor.",
		score, BlockThreshold)
}
