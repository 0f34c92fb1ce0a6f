package ticker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/types"
	"github.com/thehypeloop/dialmate/backend/internal/websocket"
)

// SnapshotSource provides the current session state.
type SnapshotSource interface {
	Snapshot() types.SessionSnapshot
}

// HeartbeatMessage is the periodic keep-alive frame sent to clients. It lets
// dashboards detect a dead connection and re-sync even when no campaign
// transition has happened for a while.
type HeartbeatMessage struct {
	Type       string              `json:"type"`
	ServerTime int64               `json:"serverTime"`
	Phase      types.CampaignPhase `json:"phase"`
	QueueSize  int                 `json:"queueSize"`
	Clients    int                 `json:"clients"`
}

// Ticker periodically broadcasts session heartbeats to the hub
type Ticker struct {
	hub      *websocket.Hub
	source   SnapshotSource
	interval time.Duration
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(hub *websocket.Hub, source SnapshotSource, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		hub:      hub,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting heartbeats
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("heartbeat ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("heartbeat ticker stopped")
			return

		case now := <-ticker.C:
			snap := t.source.Snapshot()
			message := HeartbeatMessage{
				Type:       "heartbeat",
				ServerTime: now.Unix(),
				Phase:      snap.Phase,
				QueueSize:  snap.QueueSize,
				Clients:    t.hub.ClientCount(),
			}

			data, err := json.Marshal(message)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to marshal heartbeat")
				continue
			}

			t.hub.Broadcast(data)
			t.logger.Debug().
				Str("phase", string(message.Phase)).
				Int("clients", message.Clients).
				Msg("broadcasted heartbeat")
		}
	}
}
