package feedback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	at        time.Time
}

func (s *fakeScheduler) ScheduleAt(phone, _ string, at time.Time) {
	s.mu.Lock()
	s.scheduled = append(s.scheduled, phone)
	s.at = at
	s.mu.Unlock()
}

func newTestRecorder() (*Recorder, *directory.Directory, *fakeScheduler) {
	store := storage.NewMemoryStore()
	dir := directory.New(store, zerolog.Nop())
	scheduler := &fakeScheduler{}
	return NewRecorder(dir, scheduler, zerolog.Nop()), dir, scheduler
}

func TestRecordAppendsToHistory(t *testing.T) {
	recorder, dir, _ := newTestRecorder()
	dir.Upsert(types.NewContact("Alice", "111"))

	record, err := recorder.Record("111", "Alice", Submission{
		Feedback:     "interested",
		Message:      "wants a demo",
		SpokenToName: "Alice",
	}, time.Now(), 42*time.Second)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if record.Feedback != "Interested" {
		t.Errorf("expected canonical label, got %s", record.Feedback)
	}
	if record.RecordID == "" || record.Timestamp == "" || record.RecordedAtUnix == 0 {
		t.Errorf("record missing identity fields: %+v", record)
	}
	if record.DurationSeconds != 42 {
		t.Errorf("expected duration 42s, got %d", record.DurationSeconds)
	}
	if _, ok := record.ParsedTimestamp(); !ok {
		t.Error("record timestamp not in canonical layout")
	}

	contact, _ := dir.Get("111")
	if len(contact.CallHistory) != 1 {
		t.Errorf("expected 1 history record, got %d", len(contact.CallHistory))
	}
}

func TestRecordTimestampIsDialTime(t *testing.T) {
	recorder, _, _ := newTestRecorder()

	// The record is dated by the instant the call was placed, not by when
	// the operator got around to submitting feedback.
	startedAt := time.Now().Add(-3 * time.Minute)
	record, err := recorder.Record("111", "Alice", Submission{Feedback: "Interested"}, startedAt, 3*time.Minute)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if record.Timestamp != types.FormatTimestamp(startedAt) {
		t.Errorf("expected dial-time timestamp %s, got %s", types.FormatTimestamp(startedAt), record.Timestamp)
	}
	if record.RecordedAtUnix < startedAt.Unix()+170 {
		t.Errorf("submit clock should be later than dial time, got %d", record.RecordedAtUnix)
	}
}

func TestRecordRejectsUnknownLabel(t *testing.T) {
	recorder, dir, _ := newTestRecorder()
	dir.Upsert(types.NewContact("Alice", "111"))

	_, err := recorder.Record("111", "Alice", Submission{Feedback: "Maybe Later"}, time.Now(), time.Second)
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}

	contact, _ := dir.Get("111")
	if len(contact.CallHistory) != 0 {
		t.Error("rejected submission must not touch history")
	}
}

func TestCallbackRequiresReminder(t *testing.T) {
	recorder, _, scheduler := newTestRecorder()

	_, err := recorder.Record("111", "Alice", Submission{Feedback: "Callback"}, time.Now(), time.Second)
	if !errors.Is(err, ErrMissingReminderTime) {
		t.Fatalf("expected ErrMissingReminderTime, got %v", err)
	}

	_, err = recorder.Record("111", "Alice", Submission{Feedback: "Callback", ReminderAt: "tomorrow"}, time.Now(), time.Second)
	if !errors.Is(err, ErrInvalidReminderTime) {
		t.Fatalf("expected ErrInvalidReminderTime, got %v", err)
	}

	past := types.FormatTimestamp(time.Now().Add(-time.Hour))
	_, err = recorder.Record("111", "Alice", Submission{Feedback: "Callback", ReminderAt: past}, time.Now(), time.Second)
	if !errors.Is(err, ErrInvalidReminderTime) {
		t.Fatalf("expected ErrInvalidReminderTime for past time, got %v", err)
	}

	if len(scheduler.scheduled) != 0 {
		t.Error("no reminder must be scheduled for rejected submissions")
	}
}

func TestCallbackSchedulesReminder(t *testing.T) {
	recorder, _, scheduler := newTestRecorder()

	reminderAt := types.FormatTimestamp(time.Now().Add(2 * time.Hour))
	_, err := recorder.Record("555 0101", "Bob", Submission{Feedback: "Callback", ReminderAt: reminderAt}, time.Now(), time.Second)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != "5550101" {
		t.Errorf("expected reminder scheduled for normalized number, got %v", scheduler.scheduled)
	}
}

func TestNonCallbackIgnoresReminderField(t *testing.T) {
	recorder, _, scheduler := newTestRecorder()

	_, err := recorder.Record("111", "Alice", Submission{
		Feedback:   "Follow Up",
		ReminderAt: "garbage",
	}, time.Now(), time.Second)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if len(scheduler.scheduled) != 0 {
		t.Error("non-callback outcomes must not schedule reminders")
	}
}
