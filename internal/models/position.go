package models

import "time"

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationSample is one entry of an agent's append-only location history.
type LocationSample struct {
	ID             string    `json:"id" db:"id"`
	AgentID        string    `json:"agent_id" db:"agent_id"`
	Position       Position  `json:"position" db:"position"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty" db:"accuracy"`
	Speed          *float64  `json:"speed,omitempty" db:"speed"`
	Heading        *float64  `json:"heading,omitempty" db:"heading"`
	Timestamp      time.Time `json:"timestamp" db:"recorded_at"`
}

// LocationEventType classifies an audit log entry
type LocationEventType string

const (
	LocationEventEnabled  LocationEventType = "enabled"
	LocationEventDisabled LocationEventType = "disabled"
	LocationEventAnomaly  LocationEventType = "anomaly"
)

// LocationEvent is an entry in the append-only tracking / fraud audit log
type LocationEvent struct {
	ID        string            `json:"id" db:"id"`
	AgentID   string            `json:"agent_id" db:"agent_id"`
	EventType LocationEventType `json:"event_type" db:"event_type"`
	Position  *Position         `json:"position,omitempty" db:"position"`
	Reason    string            `json:"reason,omitempty" db:"reason"`
	Timestamp time.Time         `json:"timestamp" db:"created_at"`
}

// LivePosition is the agent's "current position" field shown on live maps.
// A nil Position means the agent is hidden.
type LivePosition struct {
	AgentID   string    `json:"agent_id"`
	Position  *Position `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}
