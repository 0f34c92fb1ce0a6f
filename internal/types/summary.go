package types

import "time"

// AlertSeverity levels for contact alerts
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// ContactAlert flags a contact that needs operator attention, such as a
// promised callback that was never made.
type ContactAlert struct {
	Rule        string        `json:"rule"`
	Severity    AlertSeverity `json:"severity"`
	PhoneNumber string        `json:"phoneNumber"`
	Name        string        `json:"name,omitempty"`
	Message     string        `json:"message"`
}

// DirectorySummary is the aggregate view of the contact directory pushed to
// dashboards: totals, outcome distribution and open alerts.
type DirectorySummary struct {
	TotalContacts    int              `json:"totalContacts"`
	TotalCalls       int              `json:"totalCalls"`
	NeverCalled      int              `json:"neverCalled"`
	OutcomeBreakdown map[Feedback]int `json:"outcomeBreakdown"`
	Alerts           []ContactAlert   `json:"alerts,omitempty"`
}

// SummaryMessage wraps a DirectorySummary for broadcast over the hub.
type SummaryMessage struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Summary   DirectorySummary `json:"summary"`
}
