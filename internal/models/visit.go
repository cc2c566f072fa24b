package models

import "time"

// VisitOutcome is the state of a visit row
type VisitOutcome string

const (
	VisitOutcomePending VisitOutcome = "pending"
	VisitOutcomeSale    VisitOutcome = "sale"
	VisitOutcomeNoSale  VisitOutcome = "no_sale"
	VisitOutcomeClosed  VisitOutcome = "closed"
)

// Terminal reports whether the outcome closes a visit.
func (o VisitOutcome) Terminal() bool {
	switch o {
	case VisitOutcomeSale, VisitOutcomeNoSale, VisitOutcomeClosed:
		return true
	}
	return false
}

// Visit represents a client visit by a field agent
type Visit struct {
	ID                     string       `json:"id" db:"id"`
	AgentID                string       `json:"agent_id" db:"agent_id"`
	ClientID               string       `json:"client_id" db:"client_id"`
	StartTime              time.Time    `json:"start_time" db:"start_time"`
	EndTime                *time.Time   `json:"end_time,omitempty" db:"end_time"`
	Outcome                VisitOutcome `json:"outcome" db:"outcome"`
	Notes                  string       `json:"notes" db:"notes"`
	DurationSeconds        *int64       `json:"duration_seconds,omitempty" db:"duration_seconds"`
	CheckinPosition        *Position    `json:"checkin_position,omitempty" db:"checkin_position"`
	CheckoutPosition       *Position    `json:"checkout_position,omitempty" db:"checkout_position"`
	CheckoutAccuracyMeters *float64     `json:"checkout_accuracy_meters,omitempty" db:"checkout_accuracy"`
	Forced                 bool         `json:"forced" db:"forced"`
}

// VisitClose carries the fields written when a visit leaves the pending state
type VisitClose struct {
	EndTime                time.Time
	DurationSeconds        int64
	Outcome                VisitOutcome
	Notes                  string
	CheckoutPosition       *Position
	CheckoutAccuracyMeters *float64
	Forced                 bool
}
