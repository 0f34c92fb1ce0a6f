package types

import "strings"

// Contact is the unit of the directory: identity is the normalized phone
// number, plus the complete history of calls made to it. CallCount counts
// placed call attempts and is independent of the history size (a call can be
// placed without feedback ever being submitted).
type Contact struct {
	Name        string                `json:"name" dynamodbav:"Name"`
	PhoneNumber string                `json:"phoneNumber" dynamodbav:"PhoneNumber"`
	CallHistory map[string]CallRecord `json:"callHistory,omitempty" dynamodbav:"CallHistory"`
	CallCount   int                   `json:"callCount" dynamodbav:"CallCount"`
}

// NewContact creates a contact keyed by an already-normalized phone number.
func NewContact(name, phone string) Contact {
	return Contact{
		Name:        name,
		PhoneNumber: phone,
		CallHistory: make(map[string]CallRecord),
	}
}

// NormalizePhone strips every non-digit character. Normalization is
// idempotent; an empty result means the input was not a usable number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LatestRecord returns the record whose canonical timestamp string is
// lexicographically maximal, or false when the contact has no history.
func (c Contact) LatestRecord() (CallRecord, bool) {
	var latest CallRecord
	found := false
	for _, rec := range c.CallHistory {
		if !found || rec.Timestamp > latest.Timestamp {
			latest = rec
			found = true
		}
	}
	return latest, found
}

// HasHistory reports whether at least one call record exists.
func (c Contact) HasHistory() bool {
	return len(c.CallHistory) > 0
}

// Clone returns a deep copy so callers can hold contacts without sharing the
// history map with the directory.
func (c Contact) Clone() Contact {
	out := c
	out.CallHistory = make(map[string]CallRecord, len(c.CallHistory))
	for id, rec := range c.CallHistory {
		out.CallHistory[id] = rec
	}
	return out
}

// Merge combines an incoming write with the stored contact: the incoming
// write wins on scalar fields, histories are unioned by record id, and the
// larger call count is kept so a stale write never rewinds the counter.
func (c Contact) Merge(incoming Contact) Contact {
	merged := c.Clone()
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	for id, rec := range incoming.CallHistory {
		merged.CallHistory[id] = rec
	}
	if incoming.CallCount > merged.CallCount {
		merged.CallCount = incoming.CallCount
	}
	return merged
}

// QueueEntry is the normalized shape an import row or remote queue item
// crosses into the core as. Parsing of concrete file formats happens
// upstream.
type QueueEntry struct {
	Name  string `json:"name" dynamodbav:"Name"`
	Phone string `json:"phone" dynamodbav:"Phone"`
}
