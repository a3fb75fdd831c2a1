package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/slaguard/internal/service/alerting"
	"github.com/splax/slaguard/internal/ws"
)

// Broadcaster publishes payloads to live stream subscribers.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

// StreamEvent is the payload pushed to websocket and SSE subscribers.
type StreamEvent struct {
	Type       string    `json:"type"`
	IncidentID string    `json:"incidentId"`
	At         time.Time `json:"at"`
}

// HubNotifier mirrors incident notifications onto the live incident stream.
type HubNotifier struct {
	hub    Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// NewHubNotifier returns a notifier broadcasting on ws.TopicIncidents.
func NewHubNotifier(hub Broadcaster, logger *slog.Logger) HubNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return HubNotifier{hub: hub, logger: logger.With("component", "stream_notifier"), now: time.Now}
}

// SendIncidentNotifications implements alerting.Notifier.
func (n HubNotifier) SendIncidentNotifications(_ context.Context, incidentID, event string, _ []string) error {
	if n.hub == nil {
		return nil
	}
	payload, err := json.Marshal(StreamEvent{Type: "incident." + event, IncidentID: incidentID, At: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	n.hub.Broadcast(ws.TopicIncidents, payload)
	return nil
}

// Fanout sends every notification to each notifier and joins their errors.
type Fanout []alerting.Notifier

// SendIncidentNotifications implements alerting.Notifier.
func (f Fanout) SendIncidentNotifications(ctx context.Context, incidentID, event string, recipients []string) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.SendIncidentNotifications(ctx, incidentID, event, recipients); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
