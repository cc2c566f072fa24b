package models

// AgentTrust is the persisted trust record of a field agent
type AgentTrust struct {
	AgentID    string `json:"agent_id" db:"id"`
	TrustScore int    `json:"trust_score" db:"trust_score"`
}
