package models

import "time"

// ActivityKind labels entries in a user's activity history.
type ActivityKind string

const (
	ActivityLogin   ActivityKind = "login"
	ActivityRefresh ActivityKind = "refresh"
	ActivityLogout  ActivityKind = "logout"
)

// RiskLevel grades a detected pattern. Only medium and high are dispatched.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActivityRecord is one entry of a user's capped activity history.
type ActivityRecord struct {
	Kind      ActivityKind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	IPAddress string       `json:"ip_address"`
	UserAgent string       `json:"user_agent"`
	Location  string       `json:"location,omitempty"`
	Success   bool         `json:"success"`
}

// SecurityAlert is the payload handed to the alert dispatcher.
type SecurityAlert struct {
	UserID    string                 `json:"user_id"`
	Kind      string                 `json:"kind"`
	RiskLevel RiskLevel              `json:"risk_level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}
