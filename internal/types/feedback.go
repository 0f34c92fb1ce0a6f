package types

import (
	"fmt"
	"strings"
)

// Feedback is the closed set of call outcome labels an operator can record.
type Feedback string

const (
	FeedbackInterested    Feedback = "Interested"
	FeedbackNotInterested Feedback = "Not Interested"
	FeedbackCallback      Feedback = "Callback"
	FeedbackFollowUp      Feedback = "Follow Up"
)

// AllFeedbacks lists every valid outcome label, in display order.
var AllFeedbacks = []Feedback{
	FeedbackInterested,
	FeedbackNotInterested,
	FeedbackCallback,
	FeedbackFollowUp,
}

// ParseFeedback matches a raw label against the closed set, case-insensitively.
func ParseFeedback(raw string) (Feedback, error) {
	trimmed := strings.TrimSpace(raw)
	for _, f := range AllFeedbacks {
		if strings.EqualFold(trimmed, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feedback label %q", raw)
}

// Equals compares a feedback label against a raw string, case-insensitively.
func (f Feedback) Equals(raw string) bool {
	return strings.EqualFold(string(f), strings.TrimSpace(raw))
}
