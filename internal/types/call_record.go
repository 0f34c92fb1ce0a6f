package types

import "time"

// TimestampLayout is the canonical form every CallRecord timestamp is stored
// in. Latest-record selection compares these strings lexicographically, which
// is only a chronological ordering while all timestamps stay in this layout.
const TimestampLayout = "2006-01-02 15:04:05"

// CallRecord is one recorded call outcome for a contact. Records are
// append-only: once written they are never mutated or deleted.
type CallRecord struct {
	RecordID        string `json:"recordId" dynamodbav:"RecordID"`
	Feedback        string `json:"feedback" dynamodbav:"Feedback"`
	Message         string `json:"message,omitempty" dynamodbav:"Message"`
	Timestamp       string `json:"timestamp" dynamodbav:"Timestamp"`
	DurationSeconds int64  `json:"duration" dynamodbav:"DurationSeconds"`
	SpokenToName    string `json:"spokenToName,omitempty" dynamodbav:"SpokenToName"`

	// RecordedAtUnix is the server clock at submit time. The canonical
	// Timestamp string stays authoritative for ordering; this field exists
	// so a record written with a malformed timestamp is still datable.
	RecordedAtUnix int64 `json:"recordedAtUnix,omitempty" dynamodbav:"RecordedAtUnix"`
}

// ParsedTimestamp parses the canonical timestamp. The second return is false
// when the stored string is not in the canonical layout.
func (r CallRecord) ParsedTimestamp() (time.Time, bool) {
	t, err := time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTimestamp renders a time in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
