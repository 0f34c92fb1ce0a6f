package alerts

import (
	"fmt"
	"time"

	"github.com/thehypeloop/dialmate/backend/internal/types"
)

const (
	callbackWarnAfter     = 24 * time.Hour
	callbackCriticalAfter = 72 * time.Hour
	followUpWarnAfter     = 7 * 24 * time.Hour
)

// CheckContactAlerts evaluates alert rules across the directory and returns
// the contacts that need operator attention. A contact is judged by its
// latest record only; once a newer call outcome lands the alert clears.
func CheckContactAlerts(contacts []types.Contact, now time.Time) []types.ContactAlert {
	var out []types.ContactAlert
	for _, contact := range contacts {
		latest, ok := contact.LatestRecord()
		if !ok {
			continue
		}

		recordedAt, ok := recordTime(latest)
		if !ok {
			continue
		}
		age := now.Sub(recordedAt)

		switch {
		case types.FeedbackCallback.Equals(latest.Feedback):
			if age > callbackCriticalAfter {
				out = append(out, types.ContactAlert{
					Rule:        "callback_overdue",
					Severity:    types.SeverityCritical,
					PhoneNumber: contact.PhoneNumber,
					Name:        contact.Name,
					Message:     fmt.Sprintf("Callback promised %s ago", formatDuration(age)),
				})
			} else if age > callbackWarnAfter {
				out = append(out, types.ContactAlert{
					Rule:        "callback_overdue",
					Severity:    types.SeverityWarning,
					PhoneNumber: contact.PhoneNumber,
					Name:        contact.Name,
					Message:     fmt.Sprintf("Callback promised %s ago", formatDuration(age)),
				})
			}

		case types.FeedbackFollowUp.Equals(latest.Feedback):
			if age > followUpWarnAfter {
				out = append(out, types.ContactAlert{
					Rule:        "follow_up_stale",
					Severity:    types.SeverityWarning,
					PhoneNumber: contact.PhoneNumber,
					Name:        contact.Name,
					Message:     fmt.Sprintf("Follow up pending for %s", formatDuration(age)),
				})
			}
		}
	}
	return out
}

// recordTime dates a record by its canonical timestamp, falling back to the
// server clock captured at submit time.
func recordTime(rec types.CallRecord) (time.Time, bool) {
	if t, ok := rec.ParsedTimestamp(); ok {
		return t, true
	}
	if rec.RecordedAtUnix > 0 {
		return time.Unix(rec.RecordedAtUnix, 0), true
	}
	return time.Time{}, false
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 {
		days := hours / 24
		hours = hours % 24
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
