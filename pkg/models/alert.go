package models

import "time"

// AlertKind classifies an anomaly detected by the session monitor.
type AlertKind string

const (
	AlertSessionStall  AlertKind = "session_stall"
	AlertHighErrorRate AlertKind = "high_error_rate"
	AlertToolLoop      AlertKind = "tool_loop"
	AlertSlowResponse  AlertKind = "slow_response"
	AlertMemorySpike   AlertKind = "memory_spike"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is an anomaly observation handed to the intervention engine.
type Alert struct {
	ID                   string         `json:"id"`
	Kind                 AlertKind      `json:"kind"`
	Severity             Severity       `json:"severity"`
	SessionID            string         `json:"session_id"`
	Message              string         `json:"message"`
	Details              map[string]any `json:"details,omitempty"`
	RequiresIntervention bool           `json:"requires_intervention"`
	Timestamp            time.Time      `json:"timestamp"`
}
