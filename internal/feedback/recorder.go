package feedback

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/metrics"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

var (
	// ErrInvalidFeedback means the label is outside the closed outcome set.
	ErrInvalidFeedback = errors.New("feedback: invalid feedback label")

	// ErrMissingReminderTime means a Callback outcome came without the
	// required reminder time.
	ErrMissingReminderTime = errors.New("feedback: callback requires a reminder time")

	// ErrInvalidReminderTime means the reminder time is not in the canonical
	// layout or lies in the past.
	ErrInvalidReminderTime = errors.New("feedback: invalid reminder time")
)

// Submission is the operator's raw input for one completed call.
type Submission struct {
	Feedback     string `json:"feedback"`
	Message      string `json:"message,omitempty"`
	SpokenToName string `json:"spokenToName,omitempty"`
	ReminderAt   string `json:"reminderAt,omitempty"` // canonical layout, Callback only
}

// ReminderScheduler re-enters a contact into dialing at a chosen time.
type ReminderScheduler interface {
	ScheduleAt(phone, name string, at time.Time)
}

// Recorder validates operator feedback and appends it to contact history.
// Validation failures leave the directory untouched.
type Recorder struct {
	directory *directory.Directory
	scheduler ReminderScheduler
	logger    zerolog.Logger
}

func NewRecorder(dir *directory.Directory, scheduler ReminderScheduler, logger zerolog.Logger) *Recorder {
	return &Recorder{
		directory: dir,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Record validates a submission and writes it into the contact's history.
// startedAt is the instant the call was placed; it becomes the record's
// canonical timestamp, while the submit clock is kept separately. The
// duration is measured by the caller from dial to submit.
func (r *Recorder) Record(phone, name string, sub Submission, startedAt time.Time, duration time.Duration) (types.CallRecord, error) {
	outcome, err := types.ParseFeedback(sub.Feedback)
	if err != nil {
		return types.CallRecord{}, fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}

	var reminderAt time.Time
	if outcome == types.FeedbackCallback {
		if sub.ReminderAt == "" {
			return types.CallRecord{}, ErrMissingReminderTime
		}
		reminderAt, err = time.ParseInLocation(types.TimestampLayout, sub.ReminderAt, time.Local)
		if err != nil {
			return types.CallRecord{}, fmt.Errorf("%w: %v", ErrInvalidReminderTime, err)
		}
		if reminderAt.Before(time.Now()) {
			return types.CallRecord{}, fmt.Errorf("%w: %s is in the past", ErrInvalidReminderTime, sub.ReminderAt)
		}
	}

	now := time.Now()
	if startedAt.IsZero() {
		startedAt = now
	}
	record := types.CallRecord{
		RecordID:        uuid.New().String(),
		Feedback:        string(outcome),
		Message:         sub.Message,
		Timestamp:       types.FormatTimestamp(startedAt),
		DurationSeconds: int64(duration.Seconds()),
		SpokenToName:    sub.SpokenToName,
		RecordedAtUnix:  now.Unix(),
	}

	contact := r.directory.AppendRecord(phone, name, record)

	if outcome == types.FeedbackCallback && r.scheduler != nil {
		r.scheduler.ScheduleAt(contact.PhoneNumber, contact.Name, reminderAt)
	}

	metrics.Get().RecordFeedback(string(outcome))
	r.logger.Info().
		Str("phone", contact.PhoneNumber).
		Str("feedback", string(outcome)).
		Int64("duration_seconds", record.DurationSeconds).
		Msg("feedback recorded")

	return record, nil
}
