package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeGPSUnavailable    = "GPS_UNAVAILABLE"
	ErrCodeGPSSuspicious     = "GPS_SUSPICIOUS"
	ErrCodeAgentBlocked      = "AGENT_BLOCKED"
	ErrCodeVisitActive       = "VISIT_ACTIVE"
	ErrCodeNoActiveVisit     = "NO_ACTIVE_VISIT"
	ErrCodeInvalidOutcome    = "INVALID_OUTCOME"
	ErrCodePermissionMissing = "LOCATION_PERMISSION_REQUIRED"
)
