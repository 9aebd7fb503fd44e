package models

import "time"

// Strategy names an automated recovery action.
type Strategy string

const (
	StrategyPromptInjection Strategy = "prompt_injection"
	StrategySessionRestart  Strategy = "session_restart"
	StrategyStateReset      Strategy = "state_reset"
	StrategyToolRetry       Strategy = "tool_retry"
	StrategyPythonAnalysis  Strategy = "python_analysis"
	StrategyEscalate        Strategy = "escalate"
)

// Outcome records how an intervention attempt ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailure   Outcome = "failure"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeEscalated Outcome = "escalated"
)

// InterventionRecord is the durable trace of one recovery attempt.
type InterventionRecord struct {
	ID        string        `json:"intervention_id"`
	SessionID string        `json:"session_id"`
	AlertID   string        `json:"alert_id"`
	AlertKind AlertKind     `json:"alert_kind"`
	Strategy  Strategy      `json:"strategy"`
	Outcome   Outcome       `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// StrategyStats tracks running success counters for one strategy.
type StrategyStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Partial int `json:"partial"`
	Failure int `json:"failure"`
}
