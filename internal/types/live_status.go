package types

// CampaignPhase labels the externally visible state of the dialing session.
type CampaignPhase string

const (
	PhaseIdle             CampaignPhase = "idle"
	PhaseCountdown        CampaignPhase = "countdown"
	PhasePaused           CampaignPhase = "paused"
	PhaseActiveCall       CampaignPhase = "calling"
	PhaseAwaitingFeedback CampaignPhase = "awaiting_feedback"
	PhaseCompleted        CampaignPhase = "completed"
)

// LiveStatus is the snapshot pushed to dashboard clients on every state
// transition and countdown tick. Best-effort; no acknowledgement expected.
type LiveStatus struct {
	Status           CampaignPhase `json:"status"`
	QueuePosition    string        `json:"queuePosition,omitempty"`
	SecondsRemaining int64         `json:"secondsRemaining,omitempty"`
	CurrentContact   *Contact      `json:"currentContact,omitempty"`
	NextContact      *Contact      `json:"nextContact,omitempty"`
}

// SessionSnapshot is the full engine state exposed on the status endpoint.
type SessionSnapshot struct {
	Phase             CampaignPhase `json:"phase"`
	QueueSize         int           `json:"queueSize"`
	CurrentIndex      int           `json:"currentIndex"`
	DialingStarted    bool          `json:"dialingStarted"`
	Paused            bool          `json:"paused"`
	AllCallsCompleted bool          `json:"allCallsCompleted"`
	CallInProgress    bool          `json:"callInProgress"`
	ManualCall        bool          `json:"manualCall"`
	TimeRemainingMS   int64         `json:"timeRemainingMs"`
	CalledThisSession int           `json:"calledThisSession"`
	CurrentContact    *Contact      `json:"currentContact,omitempty"`
	NextContact       *Contact      `json:"nextContact,omitempty"`
}
