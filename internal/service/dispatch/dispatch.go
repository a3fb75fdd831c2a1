// Package dispatch hands incident escalations and notifications to the
// executors that own them. Delivery itself happens downstream.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	KindEscalation   = "escalation"
	KindNotification = "notification"

	breakerTripAfter = 5
)

// Message is the payload published for downstream executors.
type Message struct {
	Kind       string    `json:"kind"`
	IncidentID string    `json:"incidentId"`
	Event      string    `json:"event,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// Publisher delivers an encoded message to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes on Redis pub/sub channels.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("redis publisher not configured")
	}
	return p.client.Publish(ctx, channel, payload).Err()
}

// Options configure a Dispatcher.
type Options struct {
	EscalationChannel   string
	NotificationChannel string
	Timeout             time.Duration
	BreakerTimeout      time.Duration
}

// Dispatcher publishes escalation and notification requests behind a circuit
// breaker. With no publisher it only logs the request.
type Dispatcher struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a dispatcher. publisher may be nil.
func New(publisher Publisher, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		publisher: publisher,
		opts:      opts,
		logger:    logger.With("component", "dispatch"),
		now:       time.Now,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "incident-dispatch",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("dispatch breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			breakerState.Set(stateValue(to))
		},
	})
	return d
}

// ExecuteEscalation requests the escalation policy run for incidentID.
func (d *Dispatcher) ExecuteEscalation(ctx context.Context, incidentID string) error {
	return d.send(ctx, d.opts.EscalationChannel, Message{Kind: KindEscalation, IncidentID: incidentID})
}

// SendIncidentNotifications requests notifications about event for recipients.
func (d *Dispatcher) SendIncidentNotifications(ctx context.Context, incidentID, event string, recipients []string) error {
	return d.send(ctx, d.opts.NotificationChannel, Message{
		Kind:       KindNotification,
		IncidentID: incidentID,
		Event:      event,
		Recipients: recipients,
	})
}

func (d *Dispatcher) send(ctx context.Context, channel string, msg Message) error {
	msg.SentAt = d.now().UTC()
	logger := d.logger.With("incident_id", msg.IncidentID, "kind", msg.Kind)
	if d.publisher == nil || channel == "" {
		logger.Info("dispatch requested", "recipients", len(msg.Recipients))
		dispatched.WithLabelValues(msg.Kind, "logged").Inc()
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Kind, err)
	}

	_, err = d.breaker.Execute(func() (interface{}, error) {
		pubCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		return nil, d.publisher.Publish(pubCtx, channel, payload)
	})
	if err != nil {
		dispatched.WithLabelValues(msg.Kind, "failed").Inc()
		return fmt.Errorf("publish %s for incident %s: %w", msg.Kind, msg.IncidentID, err)
	}
	dispatched.WithLabelValues(msg.Kind, "published").Inc()
	logger.Debug("dispatch published", "channel", channel)
	return nil
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	}
	return 0
}
