package reminder

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/metrics"
)

// Handler receives a contact when its reminder fires.
type Handler func(phone, name string)

// Scheduler holds in-process callback reminders, one per phone number. A new
// reminder for the same number replaces the pending one. Reminders do not
// survive a restart; the call history keeps the authoritative record.
type Scheduler struct {
	timers  map[string]*time.Timer
	handler Handler
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler. The handler is attached separately so the
// engine and scheduler can be constructed in either order.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		logger: logger,
	}
}

// SetHandler attaches the function invoked when a reminder fires.
func (s *Scheduler) SetHandler(handler Handler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// ScheduleAt arms a reminder. Times in the past fire immediately.
func (s *Scheduler) ScheduleAt(phone, name string, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if existing, ok := s.timers[phone]; ok {
		existing.Stop()
	}
	s.timers[phone] = time.AfterFunc(delay, func() {
		s.fire(phone, name)
	})
	s.mu.Unlock()

	s.logger.Info().
		Str("phone", phone).
		Time("at", at).
		Msg("callback reminder scheduled")
}

func (s *Scheduler) fire(phone, name string) {
	s.mu.Lock()
	delete(s.timers, phone)
	handler := s.handler
	s.mu.Unlock()

	metrics.Get().IncrementRemindersFired()
	s.logger.Info().Str("phone", phone).Msg("callback reminder fired")

	if handler != nil {
		handler(phone, name)
	}
}

// Cancel drops the pending reminder for a phone number, if any.
func (s *Scheduler) Cancel(phone string) {
	s.mu.Lock()
	if timer, ok := s.timers[phone]; ok {
		timer.Stop()
		delete(s.timers, phone)
	}
	s.mu.Unlock()
}

// Pending returns the number of armed reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for phone, timer := range s.timers {
		timer.Stop()
		delete(s.timers, phone)
	}
	s.mu.Unlock()
}
