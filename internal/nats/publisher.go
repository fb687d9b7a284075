// Package nats announces flowhawk events on NATS and relays alerts created by
// other instances into the local stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/telhawk-systems/flowhawk/common/messaging"
	"github.com/telhawk-systems/flowhawk/internal/models"
)

// Publisher serializes domain events onto their subjects.
type Publisher struct {
	pub    messaging.Publisher
	origin string
	now    func() time.Time
}

// NewPublisher returns a Publisher tagging events with origin.
func NewPublisher(pub messaging.Publisher, origin string) *Publisher {
	return &Publisher{pub: pub, origin: origin, now: time.Now}
}

// Origin returns the instance id stamped on published events.
func (p *Publisher) Origin() string {
	return p.origin
}

// PublishAlert publishes a on the severity scoped created subject.
func (p *Publisher) PublishAlert(ctx context.Context, a models.Alert, source string) error {
	event := AlertCreatedEvent{
		Origin:      p.origin,
		Source:      source,
		Alert:       a,
		PublishedAt: p.now().UTC(),
	}
	return p.publish(ctx, messaging.AlertSeveritySubject(strings.ToLower(string(a.Severity))), event)
}

// PublishDatasetRegistered announces d.
func (p *Publisher) PublishDatasetRegistered(ctx context.Context, d models.Dataset) error {
	return p.publish(ctx, messaging.SubjectFlowDatasetsRegistered, DatasetRegisteredEvent{Origin: p.origin, Dataset: d})
}

// PublishSimulationCompleted announces the result of a dataset replay.
func (p *Publisher) PublishSimulationCompleted(ctx context.Context, e SimulationCompletedEvent) error {
	e.Origin = p.origin
	if e.FinishedAt.IsZero() {
		e.FinishedAt = p.now().UTC()
	}
	return p.publish(ctx, messaging.SubjectFlowSimulationsCompleted, e)
}

func (p *Publisher) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// AlertSink receives relayed alerts.
type AlertSink interface {
	Publish(a models.Alert)
}

// Relay forwards alerts published by other instances to a local sink so
// every instance's stream sees every alert.
type Relay struct {
	sub    messaging.Subscriber
	sink   AlertSink
	origin string
	subs   []messaging.Subscription
	logger *slog.Logger
}

// NewRelay returns a Relay ignoring events stamped with origin.
func NewRelay(sub messaging.Subscriber, sink AlertSink, origin string) *Relay {
	return &Relay{
		sub:    sub,
		sink:   sink,
		origin: origin,
		logger: slog.Default().With(slog.String("component", "nats-relay")),
	}
}

// Start subscribes to the created subjects.
func (r *Relay) Start(ctx context.Context) error {
	sub, err := r.sub.Subscribe(messaging.SubjectFlowAlertsCreatedAll, r.handleAlertCreated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to alert events: %w", err)
	}
	r.subs = append(r.subs, sub)

	r.logger.Info("NATS relay started", slog.String("subject", messaging.SubjectFlowAlertsCreatedAll))
	return nil
}

// Stop unsubscribes from all subjects.
func (r *Relay) Stop() error {
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("Failed to unsubscribe", slog.String("error", err.Error()))
		}
	}
	r.subs = nil
	return nil
}

func (r *Relay) handleAlertCreated(ctx context.Context, msg *messaging.Message) error {
	var event AlertCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return fmt.Errorf("unmarshal alert event: %w", err)
	}
	if event.Origin == r.origin {
		return nil
	}
	r.sink.Publish(event.Alert)
	return nil
}
