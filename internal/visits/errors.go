package visits

import (
	"errors"
	"strings"
)

var (
	ErrAlreadyVisiting = errors.New("agent already has an active visit")
	ErrNoActiveVisit   = errors.New("agent has no active visit")
	ErrInvalidOutcome  = errors.New("visit outcome must be sale, no_sale or closed")
)

// BlockedError is returned when the agent's trust score is under the block
// threshold. Message is shown to the agent as is.
type BlockedError struct {
	Score   int
	Message string
}

func (e *BlockedError) Error() string {
	return e.Message
}

// GPSError is returned when the position cannot back the transition.
// Unavailable separates "no GPS" from "GPS present but suspicious";
// CanForce is set on close, where the agent may force the close at a cost.
type GPSError struct {
	Unavailable bool
	CanForce    bool
	Reasons     []string
}

func (e *GPSError) Error() string {
	prefix := "GPS validation failed"
	if e.Unavailable {
		prefix = "GPS is required, enable location services"
	}
	if len(e.Reasons) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(e.Reasons, "; ")
}
