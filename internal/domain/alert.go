package domain

// Severity classifies an operator alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityUrgent Severity = "urgent"
)

// Alert is an operator notification delivered by the notifier
// collaborator (source deactivation, daily sync failure, digest ready).
type Alert struct {
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
}
