package models

// RFCStatus is the lifecycle state of an RFC document. The on-disk folder
// set is exactly {in_progress, archived}; "new" is accepted on input as an
// alias of in_progress and normalised before anything is written.
type RFCStatus string

const (
	RFCInProgress RFCStatus = "in_progress"
	RFCArchived   RFCStatus = "archived"
)

// NormalizeRFCStatus maps accepted input aliases onto the canonical set.
// Unknown values are returned unchanged so validation can reject them.
func NormalizeRFCStatus(s string) RFCStatus {
	switch s {
	case "new", "in_progress":
		return RFCInProgress
	case "archived":
		return RFCArchived
	default:
		return RFCStatus(s)
	}
}

// StatusChange is one entry in an RFC's status history.
type StatusChange struct {
	From      RFCStatus `json:"from"`
	To        RFCStatus `json:"to"`
	Timestamp string    `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// RFCMetadata is the JSON sidecar stored next to every RFC markdown file.
type RFCMetadata struct {
	RFCID         string         `json:"rfc_id"`
	Filename      string         `json:"filename"`
	ShortName     string         `json:"short_name"`
	Title         string         `json:"title"`
	Status        RFCStatus      `json:"status"`
	Created       string         `json:"created"`
	Updated       string         `json:"updated"`
	Author        string         `json:"author"`
	StatusHistory []StatusChange `json:"status_history"`
	DerivedPlans  []string       `json:"derived_plans"`
}
