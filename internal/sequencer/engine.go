package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/dialer"
	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/feedback"
	"github.com/thehypeloop/dialmate/backend/internal/metrics"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

var (
	ErrEmptyQueue       = errors.New("sequencer: no queue loaded")
	ErrAlreadyRunning   = errors.New("sequencer: campaign already running")
	ErrNotRunning       = errors.New("sequencer: campaign not running")
	ErrNotPaused        = errors.New("sequencer: campaign not paused")
	ErrCallInProgress   = errors.New("sequencer: a call is in progress")
	ErrNoCallInProgress = errors.New("sequencer: no call awaiting feedback")
	ErrQueueLocked      = errors.New("sequencer: cannot replace queue mid-campaign")
	ErrBadPhone         = errors.New("sequencer: phone number has no digits")
)

// Publisher pushes live status snapshots to connected dashboards.
type Publisher interface {
	PublishStatus(status types.LiveStatus)
}

// Recorder validates and persists operator feedback for a finished call.
// startedAt is the dial instant, which dates the resulting record.
type Recorder interface {
	Record(phone, name string, sub feedback.Submission, startedAt time.Time, duration time.Duration) (types.CallRecord, error)
}

// Config holds the engine's timing knobs.
type Config struct {
	CallDelay     time.Duration // cool-down countdown before each automated dial
	CountdownTick time.Duration // countdown granularity
	DialGrace     time.Duration // delay before advancing past a failed dial
}

func (c *Config) applyDefaults() {
	if c.CallDelay <= 0 {
		c.CallDelay = 5 * time.Second
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = time.Second
	}
	if c.DialGrace <= 0 {
		c.DialGrace = 2 * time.Second
	}
}

// Engine drives one dialing session: countdown, dial, await feedback,
// advance. All state lives inside the Run loop; public methods post events
// and wait for the loop's reply, so no mutex guards the session.
type Engine struct {
	events chan event

	// session state, owned by the Run goroutine
	queue             []types.Contact
	currentIndex      int
	savedIndex        int
	dialingStarted    bool
	paused            bool
	allCallsCompleted bool
	callInProgress    bool
	awaitingFeedback  bool
	manualCall        bool
	timeRemaining     time.Duration
	calledThisSession map[string]bool
	callStartedAt     time.Time
	timerSeq          int
	callSeq           int
	cancelTimer       context.CancelFunc

	cfg       Config
	directory *directory.Directory
	dialer    dialer.Dialer
	recorder  Recorder
	publisher Publisher
	logger    zerolog.Logger
}

type event interface{}

type evSetQueue struct {
	contacts []types.Contact
	reply    chan error
}

type evStart struct{ reply chan error }
type evPause struct{ reply chan error }
type evResume struct{ reply chan error }

type evTick struct{ seq int }

type evDialResult struct {
	seq   int
	phone string
	err   error
}

type feedbackReply struct {
	record types.CallRecord
	err    error
}

type evFeedback struct {
	sub   feedback.Submission
	reply chan feedbackReply
}

type evManualDial struct {
	name  string
	phone string
	reply chan error
}

type evSnapshot struct{ reply chan types.SessionSnapshot }

// NewEngine creates a campaign engine.
func NewEngine(cfg Config, dir *directory.Directory, d dialer.Dialer, rec Recorder, pub Publisher, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		events:            make(chan event, 32),
		calledThisSession: make(map[string]bool),
		cfg:               cfg,
		directory:         dir,
		dialer:            d,
		recorder:          rec,
		publisher:         pub,
		logger:            logger,
	}
}

// Run processes engine events until ctx is cancelled. Must be running for
// any of the public methods to return.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Dur("call_delay", e.cfg.CallDelay).
		Dur("countdown_tick", e.cfg.CountdownTick).
		Msg("campaign engine started")

	for {
		select {
		case <-ctx.Done():
			e.stopTimer()
			e.logger.Info().Msg("campaign engine stopped")
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

// SetQueue replaces the pending queue and resets the session. Rejected while
// a campaign is running or a call is in progress.
func (e *Engine) SetQueue(contacts []types.Contact) error {
	reply := make(chan error, 1)
	e.events <- evSetQueue{contacts: contacts, reply: reply}
	return <-reply
}

// Start begins dialing the loaded queue, counting down to the first call.
func (e *Engine) Start() error {
	reply := make(chan error, 1)
	e.events <- evStart{reply: reply}
	return <-reply
}

// Pause freezes the countdown, preserving the remaining time.
func (e *Engine) Pause() error {
	reply := make(chan error, 1)
	e.events <- evPause{reply: reply}
	return <-reply
}

// Resume continues a paused countdown from where it stopped.
func (e *Engine) Resume() error {
	reply := make(chan error, 1)
	e.events <- evResume{reply: reply}
	return <-reply
}

// SubmitFeedback records the outcome of the call in progress and advances
// the campaign.
func (e *Engine) SubmitFeedback(sub feedback.Submission) (types.CallRecord, error) {
	reply := make(chan feedbackReply, 1)
	e.events <- evFeedback{sub: sub, reply: reply}
	res := <-reply
	return res.record, res.err
}

// ManualDial interjects an immediate call to the given number. The campaign
// cursor is restored once feedback for the manual call is recorded.
func (e *Engine) ManualDial(name, phone string) error {
	reply := make(chan error, 1)
	e.events <- evManualDial{name: name, phone: phone, reply: reply}
	return <-reply
}

// Snapshot returns the full session state.
func (e *Engine) Snapshot() types.SessionSnapshot {
	reply := make(chan types.SessionSnapshot, 1)
	e.events <- evSnapshot{reply: reply}
	return <-reply
}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case evSetQueue:
		ev.reply <- e.handleSetQueue(ev.contacts)
	case evStart:
		ev.reply <- e.handleStart()
	case evPause:
		ev.reply <- e.handlePause()
	case evResume:
		ev.reply <- e.handleResume()
	case evTick:
		e.handleTick(ev.seq)
	case evDialResult:
		e.handleDialResult(ev)
	case evFeedback:
		record, err := e.handleFeedback(ev.sub)
		ev.reply <- feedbackReply{record: record, err: err}
	case evManualDial:
		ev.reply <- e.handleManualDial(ev.name, ev.phone)
	case evSnapshot:
		ev.reply <- e.snapshot()
	}
}

func (e *Engine) handleSetQueue(contacts []types.Contact) error {
	if e.callInProgress {
		return ErrCallInProgress
	}
	if e.dialingStarted && !e.allCallsCompleted {
		return ErrQueueLocked
	}

	e.stopTimer()
	e.queue = make([]types.Contact, 0, len(contacts))
	for _, c := range contacts {
		e.queue = append(e.queue, c.Clone())
	}
	e.currentIndex = 0
	e.savedIndex = 0
	e.dialingStarted = false
	e.paused = false
	e.allCallsCompleted = false
	e.manualCall = false
	e.timeRemaining = 0
	e.calledThisSession = make(map[string]bool)

	e.logger.Info().Int("queue_size", len(e.queue)).Msg("dial queue loaded")
	e.publish(types.LiveStatus{Status: types.PhaseIdle})
	return nil
}

func (e *Engine) handleStart() error {
	if len(e.queue) == 0 {
		return ErrEmptyQueue
	}
	if e.callInProgress {
		return ErrCallInProgress
	}
	if e.dialingStarted && !e.allCallsCompleted {
		return ErrAlreadyRunning
	}

	if e.allCallsCompleted {
		// Restarting a finished queue begins a fresh session.
		e.currentIndex = 0
		e.allCallsCompleted = false
		e.calledThisSession = make(map[string]bool)
	}

	e.dialingStarted = true
	e.paused = false
	metrics.Get().IncrementCampaignsStarted()
	e.logger.Info().Int("queue_size", len(e.queue)).Msg("campaign started")

	e.startCountdown(e.cfg.CallDelay)
	return nil
}

func (e *Engine) handlePause() error {
	if !e.dialingStarted || e.allCallsCompleted {
		return ErrNotRunning
	}
	if e.callInProgress {
		return ErrCallInProgress
	}
	if e.paused {
		return nil
	}

	e.paused = true
	e.stopTimer()
	e.logger.Info().Dur("time_remaining", e.timeRemaining).Msg("campaign paused")
	e.publish(e.countdownStatus(types.PhasePaused))
	return nil
}

func (e *Engine) handleResume() error {
	if !e.paused {
		return ErrNotPaused
	}

	e.paused = false
	remaining := e.timeRemaining
	if remaining <= 0 {
		remaining = e.cfg.CountdownTick
	}
	e.logger.Info().Dur("time_remaining", remaining).Msg("campaign resumed")
	e.startCountdown(remaining)
	return nil
}

func (e *Engine) handleTick(seq int) {
	if seq != e.timerSeq || e.paused {
		return
	}

	e.timeRemaining -= e.cfg.CountdownTick
	if e.timeRemaining <= 0 {
		e.timeRemaining = 0
		e.stopTimer()
		e.dialCurrent()
		return
	}
	e.publish(e.countdownStatus(types.PhaseCountdown))
}

func (e *Engine) dialCurrent() {
	if !e.manualCall {
		// Numbers already dialed this session are skipped, not re-dialed.
		for e.currentIndex < len(e.queue) && e.calledThisSession[e.queue[e.currentIndex].PhoneNumber] {
			e.currentIndex++
		}
		if e.currentIndex >= len(e.queue) {
			e.completeSession()
			return
		}
	}

	contact := e.queue[e.currentIndex]
	phone := contact.PhoneNumber

	e.calledThisSession[phone] = true
	e.directory.IncrementCallCount(phone, contact.Name)
	e.callInProgress = true
	e.awaitingFeedback = false
	e.callStartedAt = time.Now()
	e.callSeq++
	seq := e.callSeq

	metrics.Get().IncrementCallsPlaced()
	e.logger.Info().
		Str("phone", phone).
		Str("name", contact.Name).
		Bool("manual", e.manualCall).
		Msg("placing call")

	e.publish(e.callStatus(types.PhaseActiveCall))

	go func() {
		err := e.dialer.Place(context.Background(), phone)
		e.events <- evDialResult{seq: seq, phone: phone, err: err}
	}()
}

func (e *Engine) handleDialResult(ev evDialResult) {
	if ev.seq != e.callSeq || !e.callInProgress {
		return
	}

	if ev.err == nil {
		// The call is out; the operator owes feedback before the queue moves.
		e.awaitingFeedback = true
		e.logger.Debug().Str("phone", ev.phone).Msg("call handed to carrier")
		e.publish(e.callStatus(types.PhaseAwaitingFeedback))
		return
	}

	// Failed dials advance the queue after a short grace; no feedback is
	// expected for a call that never went out.
	metrics.Get().IncrementCallsFailed()
	e.logger.Error().Err(ev.err).Str("phone", ev.phone).Msg("dial failed")
	e.callInProgress = false
	e.awaitingFeedback = false
	e.advanceAfterCall(e.cfg.DialGrace)
}

func (e *Engine) handleFeedback(sub feedback.Submission) (types.CallRecord, error) {
	if !e.callInProgress {
		return types.CallRecord{}, ErrNoCallInProgress
	}

	contact := e.queue[e.currentIndex]
	duration := time.Since(e.callStartedAt)

	record, err := e.recorder.Record(contact.PhoneNumber, contact.Name, sub, e.callStartedAt, duration)
	if err != nil {
		return types.CallRecord{}, err
	}

	// Refresh the queued copy so later snapshots show the new history.
	if fresh, ok := e.directory.Get(contact.PhoneNumber); ok {
		e.queue[e.currentIndex] = fresh
	}

	e.callInProgress = false
	e.awaitingFeedback = false
	e.advanceAfterCall(e.cfg.CallDelay)
	return record, nil
}

func (e *Engine) handleManualDial(name, phone string) error {
	if e.callInProgress {
		return ErrCallInProgress
	}

	key := types.NormalizePhone(phone)
	if key == "" {
		return ErrBadPhone
	}

	contact, ok := e.directory.Get(key)
	if !ok {
		contact = types.NewContact(name, key)
	}

	e.stopTimer()
	e.savedIndex = e.currentIndex
	e.queue = append([]types.Contact{contact}, e.queue...)
	e.currentIndex = 0
	e.manualCall = true

	metrics.Get().IncrementManualDials()
	e.logger.Info().Str("phone", key).Msg("manual dial interjected")

	e.dialCurrent()
	return nil
}

// advanceAfterCall moves the cursor past the finished call and schedules the
// next one. Manual calls restore the cursor that was saved when they were
// interjected.
func (e *Engine) advanceAfterCall(delay time.Duration) {
	if e.manualCall {
		e.queue = e.queue[1:]
		e.currentIndex = e.savedIndex
		e.manualCall = false
	} else {
		e.currentIndex++
	}

	if !e.dialingStarted || e.allCallsCompleted {
		// Manual call outside a running campaign: back to idle.
		e.publish(types.LiveStatus{Status: types.PhaseIdle})
		return
	}

	if e.nextUncalledFrom(e.currentIndex) < 0 {
		e.completeSession()
		return
	}

	if e.paused {
		// A manual call interjected while paused leaves the campaign paused.
		e.timeRemaining = delay
		e.publish(e.countdownStatus(types.PhasePaused))
		return
	}
	e.startCountdown(delay)
}

func (e *Engine) completeSession() {
	e.stopTimer()
	e.dialingStarted = false
	e.paused = false
	e.callInProgress = false
	e.awaitingFeedback = false
	e.allCallsCompleted = true
	e.calledThisSession = make(map[string]bool)

	metrics.Get().IncrementCampaignsCompleted()
	e.logger.Info().Int("queue_size", len(e.queue)).Msg("campaign completed")
	e.publish(types.LiveStatus{Status: types.PhaseCompleted})
}

func (e *Engine) startCountdown(d time.Duration) {
	e.stopTimer()
	e.timerSeq++
	seq := e.timerSeq
	e.timeRemaining = d

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelTimer = cancel

	go func() {
		ticker := time.NewTicker(e.cfg.CountdownTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case e.events <- evTick{seq: seq}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	e.publish(e.countdownStatus(types.PhaseCountdown))
}

func (e *Engine) stopTimer() {
	if e.cancelTimer != nil {
		e.cancelTimer()
		e.cancelTimer = nil
	}
	e.timerSeq++
}

// nextUncalledFrom returns the first queue index at or after start whose
// number has not been dialed this session, or -1.
func (e *Engine) nextUncalledFrom(start int) int {
	for i := start; i < len(e.queue); i++ {
		if !e.calledThisSession[e.queue[i].PhoneNumber] {
			return i
		}
	}
	return -1
}

func (e *Engine) currentContact() *types.Contact {
	if e.currentIndex < 0 || e.currentIndex >= len(e.queue) {
		return nil
	}
	c := e.queue[e.currentIndex].Clone()
	return &c
}

func (e *Engine) nextContact() *types.Contact {
	idx := e.nextUncalledFrom(e.currentIndex + 1)
	if idx < 0 {
		return nil
	}
	c := e.queue[idx].Clone()
	return &c
}

func (e *Engine) queuePosition() string {
	if len(e.queue) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d", e.currentIndex+1, len(e.queue))
}

func (e *Engine) countdownStatus(phase types.CampaignPhase) types.LiveStatus {
	return types.LiveStatus{
		Status:           phase,
		QueuePosition:    e.queuePosition(),
		SecondsRemaining: int64((e.timeRemaining + time.Second - 1) / time.Second),
		CurrentContact:   e.currentContact(),
		NextContact:      e.nextContact(),
	}
}

func (e *Engine) callStatus(phase types.CampaignPhase) types.LiveStatus {
	return types.LiveStatus{
		Status:         phase,
		QueuePosition:  e.queuePosition(),
		CurrentContact: e.currentContact(),
		NextContact:    e.nextContact(),
	}
}

func (e *Engine) snapshot() types.SessionSnapshot {
	phase := types.PhaseIdle
	switch {
	case e.callInProgress && e.awaitingFeedback:
		phase = types.PhaseAwaitingFeedback
	case e.callInProgress:
		phase = types.PhaseActiveCall
	case e.paused:
		phase = types.PhasePaused
	case e.dialingStarted:
		phase = types.PhaseCountdown
	case e.allCallsCompleted:
		phase = types.PhaseCompleted
	}

	return types.SessionSnapshot{
		Phase:             phase,
		QueueSize:         len(e.queue),
		CurrentIndex:      e.currentIndex,
		DialingStarted:    e.dialingStarted,
		Paused:            e.paused,
		AllCallsCompleted: e.allCallsCompleted,
		CallInProgress:    e.callInProgress,
		ManualCall:        e.manualCall,
		TimeRemainingMS:   e.timeRemaining.Milliseconds(),
		CalledThisSession: len(e.calledThisSession),
		CurrentContact:    e.currentContact(),
		NextContact:       e.nextContact(),
	}
}

func (e *Engine) publish(status types.LiveStatus) {
	if e.publisher != nil {
		e.publisher.PublishStatus(status)
	}
}
