package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/alerts"
	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/metrics"
	"github.com/thehypeloop/dialmate/backend/internal/types"
	"github.com/thehypeloop/dialmate/backend/internal/websocket"
)

// Aggregator periodically condenses the contact directory into a summary and
// broadcasts it to dashboards
type Aggregator struct {
	directory *directory.Directory
	hub       *websocket.Hub
	interval  time.Duration
	logger    zerolog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(dir *directory.Directory, hub *websocket.Hub, interval time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		directory: dir,
		hub:       hub,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins summarizing the directory and broadcasting results
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	m := metrics.Get()
	a.logger.Info().Dur("interval", a.interval).Msg("aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("aggregator stopped")
			return

		case <-ticker.C:
			// Nobody is watching, skip the cycle
			if a.hub.ClientCount() == 0 {
				continue
			}

			summary := a.buildSummary(time.Now())

			message := types.SummaryMessage{
				Type:      "directorySummary",
				Timestamp: time.Now(),
				Summary:   summary,
			}

			data, err := json.Marshal(message)
			if err != nil {
				a.logger.Error().Err(err).Msg("failed to marshal directory summary")
				continue
			}

			a.hub.Broadcast(data)
			m.IncrementSummaryBroadcasts()

			a.logger.Debug().
				Int("contacts", summary.TotalContacts).
				Int("alerts", len(summary.Alerts)).
				Int("clients", a.hub.ClientCount()).
				Msg("broadcasted directory summary")
		}
	}
}

// buildSummary computes the aggregate view of the directory
func (a *Aggregator) buildSummary(now time.Time) types.DirectorySummary {
	contacts := a.directory.All()

	summary := types.DirectorySummary{
		TotalContacts:    len(contacts),
		OutcomeBreakdown: make(map[types.Feedback]int),
	}

	for _, contact := range contacts {
		summary.TotalCalls += contact.CallCount
		latest, ok := contact.LatestRecord()
		if !ok {
			summary.NeverCalled++
			continue
		}
		if outcome, err := types.ParseFeedback(latest.Feedback); err == nil {
			summary.OutcomeBreakdown[outcome]++
		}
	}

	summary.Alerts = alerts.CheckContactAlerts(contacts, now)
	return summary
}
