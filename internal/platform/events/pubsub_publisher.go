// Package events publishes checkout and lead integration events to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/mazira-designs/api/internal/services"
)

const (
	eventTypeCheckoutSession = "checkout.session.created"
	eventTypeLeadSubmitted   = "lead.submitted"
)

// PubSubPublisher publishes integration events to one topic per event family.
type PubSubPublisher struct {
	checkout *pubsub.Topic
	leads    *pubsub.Topic
	marshal  func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a publisher. Both topics are required.
func NewPubSubPublisher(checkout, leads *pubsub.Topic) (*PubSubPublisher, error) {
	if checkout == nil {
		return nil, errors.New("pubsub publisher: checkout topic is required")
	}
	if leads == nil {
		return nil, errors.New("pubsub publisher: lead topic is required")
	}
	return &PubSubPublisher{
		checkout: checkout,
		leads:    leads,
		marshal:  json.Marshal,
	}, nil
}

// PublishCheckoutSession emits checkout.session.created.
func (p *PubSubPublisher) PublishCheckoutSession(ctx context.Context, event services.CheckoutSessionEvent) (string, error) {
	if p == nil || p.checkout == nil {
		return "", errors.New("pubsub publisher: not initialised")
	}
	attrs := map[string]string{"eventType": eventTypeCheckoutSession}
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "sessionId", event.SessionID)
	setAttr(attrs, "provider", event.Provider)
	setAttr(attrs, "currency", event.Currency)
	setAttr(attrs, "idempotencyKey", event.IdempotencyKey)
	attrs["total"] = strconv.FormatInt(event.Total, 10)
	return p.publish(ctx, p.checkout, event, attrs)
}

// PublishLead emits lead.submitted. The contact email stays in the payload only.
func (p *PubSubPublisher) PublishLead(ctx context.Context, event services.LeadSubmittedEvent) (string, error) {
	if p == nil || p.leads == nil {
		return "", errors.New("pubsub publisher: not initialised")
	}
	attrs := map[string]string{"eventType": eventTypeLeadSubmitted}
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "mode", event.Mode)
	return p.publish(ctx, p.leads, event, attrs)
}

// Stop flushes pending messages on both topics.
func (p *PubSubPublisher) Stop() {
	if p == nil {
		return
	}
	p.checkout.Stop()
	p.leads.Stop()
}

func (p *PubSubPublisher) publish(ctx context.Context, topic *pubsub.Topic, payload any, attrs map[string]string) (string, error) {
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", attrs["eventType"], err)
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", attrs["eventType"], err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
