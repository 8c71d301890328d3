package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultReportLimit = 50
	maxReportLimit     = 500
)

// ListDeliveries pages through delivery jobs. Archived rows are hidden unless
// the filter asks for them.
func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	if s == nil {
		return DeliveryPage{}, fmt.Errorf("core: service is nil")
	}
	filter.EventID = strings.TrimSpace(filter.EventID)
	filter.SubscriptionID = strings.TrimSpace(filter.SubscriptionID)
	if filter.Status != "" && !filter.Status.Valid() {
		return DeliveryPage{}, badInput(fmt.Sprintf("core: invalid delivery status %q", filter.Status))
	}
	if filter.Offset < 0 {
		return DeliveryPage{}, badInput("core: offset must not be negative")
	}
	filter.Limit = clampLimit(filter.Limit)
	page, err := s.attemptStore.ListAttempts(ctx, filter)
	if err != nil {
		return DeliveryPage{}, storeFailure(err, "core: list deliveries failed")
	}
	return page, nil
}

func (s *Service) DeliveriesForEvent(ctx context.Context, eventID string) ([]DeliveryAttempt, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, badInput("core: event_id is required")
	}
	page, err := s.ListDeliveries(ctx, DeliveryFilter{EventID: eventID, Limit: maxReportLimit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (s *Service) DeliveriesForSubscription(ctx context.Context, subscriptionID string, limit int) ([]DeliveryAttempt, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, badInput("core: subscription_id is required")
	}
	page, err := s.ListDeliveries(ctx, DeliveryFilter{SubscriptionID: subscriptionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// DeadLetters lists exhausted jobs for operator review.
func (s *Service) DeadLetters(ctx context.Context, subscriptionID string, limit int) ([]DeliveryAttempt, error) {
	page, err := s.ListDeliveries(ctx, DeliveryFilter{
		SubscriptionID: subscriptionID,
		Status:         DeliveryStatusFailedExhausted,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (s *Service) GetDelivery(ctx context.Context, id string) (DeliveryAttempt, error) {
	if s == nil {
		return DeliveryAttempt{}, fmt.Errorf("core: service is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return DeliveryAttempt{}, badInput("core: delivery id is required")
	}
	attempt, err := s.attemptStore.GetAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return DeliveryAttempt{}, notFound(err, RelayErrorAttemptNotFound)
		}
		return DeliveryAttempt{}, storeFailure(err, "core: load delivery failed")
	}
	return attempt, nil
}

func (s *Service) StatusCounts(ctx context.Context, filter StatusCountFilter) (StatusCounts, error) {
	if s == nil {
		return StatusCounts{}, fmt.Errorf("core: service is nil")
	}
	if s.statusCounter == nil {
		return StatusCounts{}, fmt.Errorf("core: status counter is not configured")
	}
	filter.SubscriptionID = strings.TrimSpace(filter.SubscriptionID)
	counts, err := s.statusCounter.CountByStatus(ctx, filter)
	if err != nil {
		return StatusCounts{}, storeFailure(err, "core: count deliveries failed")
	}
	return counts, nil
}

func (s *Service) SubscriptionHealth(ctx context.Context, subscriptionID string) (SubscriptionHealth, error) {
	if s == nil {
		return SubscriptionHealth{}, fmt.Errorf("core: service is nil")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return SubscriptionHealth{}, badInput("core: subscription_id is required")
	}
	sub, err := s.subscriptionStore.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return SubscriptionHealth{}, notFound(err, RelayErrorSubscriptionNotFound)
		}
		return SubscriptionHealth{}, storeFailure(err, "core: load subscription failed")
	}
	return HealthFromSubscription(sub), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultReportLimit
	}
	if limit > maxReportLimit {
		return maxReportLimit
	}
	return limit
}
