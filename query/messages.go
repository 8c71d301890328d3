package query

import (
	"strings"

	"github.com/goliatone/go-relay/core"
)

const (
	TypeListDeliveries     = "relay.query.deliveries.list"
	TypeGetDelivery        = "relay.query.deliveries.get"
	TypeDeliveriesForEvent = "relay.query.deliveries.by_event"
	TypeDeadLetters        = "relay.query.deliveries.dead_letters"
	TypeStatusCounts       = "relay.query.deliveries.status_counts"
	TypeSubscriptionHealth = "relay.query.subscription.health"
)

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryValidationError("status", "unknown delivery status")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type DeliveriesForEventMessage struct {
	EventID string
}

func (DeliveriesForEventMessage) Type() string { return TypeDeliveriesForEvent }

func (m DeliveriesForEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

// DeadLettersMessage lists exhausted deliveries; an empty subscription id
// spans all subscriptions.
type DeadLettersMessage struct {
	SubscriptionID string
	Limit          int
}

func (DeadLettersMessage) Type() string { return TypeDeadLetters }

func (m DeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type StatusCountsMessage struct {
	Filter core.StatusCountFilter
}

func (StatusCountsMessage) Type() string { return TypeStatusCounts }

func (StatusCountsMessage) Validate() error { return nil }

type SubscriptionHealthMessage struct {
	SubscriptionID string
}

func (SubscriptionHealthMessage) Type() string { return TypeSubscriptionHealth }

func (m SubscriptionHealthMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return queryValidationError("subscription_id", "subscription id is required")
	}
	return nil
}
