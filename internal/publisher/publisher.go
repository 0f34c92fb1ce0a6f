package publisher

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/types"
	"github.com/thehypeloop/dialmate/backend/internal/websocket"
)

// statusMessage is the wire envelope for live status frames.
type statusMessage struct {
	Type string           `json:"type"`
	Data types.LiveStatus `json:"data"`
}

// HubPublisher pushes live status snapshots to every connected dashboard
// through the websocket hub. Delivery is best-effort.
type HubPublisher struct {
	hub    *websocket.Hub
	logger zerolog.Logger
}

func NewHubPublisher(hub *websocket.Hub, logger zerolog.Logger) *HubPublisher {
	return &HubPublisher{
		hub:    hub,
		logger: logger,
	}
}

func (p *HubPublisher) PublishStatus(status types.LiveStatus) {
	data, err := json.Marshal(statusMessage{Type: "liveStatus", Data: status})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal live status")
		return
	}
	p.hub.Broadcast(data)
}

// NopPublisher discards status updates. Used in tests and headless runs.
type NopPublisher struct{}

func (NopPublisher) PublishStatus(types.LiveStatus) {}
