package gps

import (
	"context"
	"log/slog"
	"strings"
)

// Penalizer debits an agent's trust score
type Penalizer interface {
	ApplyPenalty(ctx context.Context, agentID string, amount int, reason string) (int, error)
}

// CheckOutcome is a validation plus whatever penalty it caused
type CheckOutcome struct {
	Result
	Penalty    int  `json:"penalty"`
	AgentScore *int `json:"agent_trust_score,omitempty"`
}

// PenalizingCheck validates a fix and, when the fix is untrusted because of
// tampering signals, debits the agent by the sum of those deductions.
// Unavailability and low accuracy alone never cost trust.
type PenalizingCheck struct {
	validator *Validator
	trust     Penalizer
	logger    *slog.Logger
}

// NewPenalizingCheck creates a penalizing check
func NewPenalizingCheck(v *Validator, trust Penalizer, logger *slog.Logger) *PenalizingCheck {
	if logger == nil {
		logger = slog.Default()
	}
	return &PenalizingCheck{validator: v, trust: trust, logger: logger.With("component", "gps_check")}
}

// Run validates and penalizes. A penalty write failure is returned with the
// validation result so the caller still sees the verdict.
func (p *PenalizingCheck) Run(ctx context.Context, loc Locator, agentID string) (CheckOutcome, error) {
	out := CheckOutcome{Result: p.validator.Validate(ctx, loc, agentID)}
	if out.Unavailable || out.Trusted() {
		return out, nil
	}
	amount := out.TamperDeduction()
	if amount == 0 {
		return out, nil
	}

	score, err := p.trust.ApplyPenalty(ctx, agentID, amount, "GPS tampering: "+strings.Join(tamperReasons(out.Result), ", "))
	if err != nil {
		return out, err
	}
	out.Penalty = amount
	out.AgentScore = &score
	return out, nil
}

func tamperReasons(r Result) []string {
	var reasons []string
	if r.Mocked {
		reasons = append(reasons, ReasonMocked)
	}
	if r.DeveloperMode {
		reasons = append(reasons, ReasonDeveloperMode)
	}
	if r.Rooted {
		reasons = append(reasons, ReasonRooted)
	}
	return reasons
}
