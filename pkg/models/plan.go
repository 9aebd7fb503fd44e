package models

// TDDPhase orders plan tasks into red / green / refactor buckets.
type TDDPhase string

const (
	PhaseRed      TDDPhase = "red"
	PhaseGreen    TDDPhase = "green"
	PhaseRefactor TDDPhase = "refactor"
)

// TaskStatus tracks per-task execution progress inside a plan.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// PlanTask is one unit of work inside a generated plan.
type PlanTask struct {
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	AgentType          string     `json:"agent_type,omitempty"`
	Dependencies       []string   `json:"dependencies"`
	TDDPhase           TDDPhase   `json:"tdd_phase"`
	ValidationCriteria []string   `json:"validation_criteria"`
	Status             TaskStatus `json:"status,omitempty"`
}

// TDDPhases lists task names grouped by phase.
type TDDPhases struct {
	Red      []string `json:"red"`
	Green    []string `json:"green"`
	Refactor []string `json:"refactor"`
}

// SourceRFC identifies the RFC a plan was generated from.
type SourceRFC struct {
	RFCID string `json:"rfc_id"`
	Title string `json:"title"`
}

// Plan is the plan.json document derived from an RFC.
type Plan struct {
	PlanType           string     `json:"plan_type"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	AgentType          string     `json:"agent_type,omitempty"`
	TDDPhases          TDDPhases  `json:"tdd_phases"`
	Tasks              []PlanTask `json:"tasks"`
	ValidationCriteria []string   `json:"validation_criteria"`
	SourceRFC          SourceRFC  `json:"source_rfc"`
	Created            string     `json:"created"`
	Updated            string     `json:"updated"`
	RefinementHistory  []string   `json:"refinement_history"`
}

// SyncEntry is one record in rfc_reference.json's sync history.
type SyncEntry struct {
	Timestamp       string `json:"timestamp"`
	PreviousHash    string `json:"previous_hash"`
	NewHash         string `json:"new_hash"`
	ChangesDetected bool   `json:"changes_detected"`
}

// RFCReference links a plan directory back to its source RFC by content hash.
// Hash drift between the reference and the live RFC markdown is what drives
// plan regeneration.
type RFCReference struct {
	RFCID       string      `json:"rfc_id"`
	RFCHash     string      `json:"rfc_hash"`
	RFCPath     string      `json:"rfc_path"`
	LastSync    string      `json:"last_sync"`
	SyncHistory []SyncEntry `json:"sync_history"`
}

// PlanStatus mirrors the RFC status folders for plan directories.
type PlanStatus = RFCStatus
