package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-relay/core"
)

func (r *eventRecord) toDomain() core.Event {
	if r == nil {
		return core.Event{}
	}
	// Unknown types are returned verbatim; matching filters them out.
	return core.Event{
		ID:        r.ID,
		Type:      core.EventType(strings.TrimSpace(strings.ToLower(r.EventType))),
		TenantID:  r.TenantID,
		Country:   r.Country,
		ScooterID: r.ScooterID,
		UserID:    r.UserID,
		Payload:   copyAnyMap(r.Payload),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func newEventRecord(event core.Event) *eventRecord {
	return &eventRecord{
		ID:        strings.TrimSpace(event.ID),
		EventType: string(event.Type),
		TenantID:  event.TenantID,
		Country:   strings.ToUpper(strings.TrimSpace(event.Country)),
		ScooterID: event.ScooterID,
		UserID:    event.UserID,
		Payload:   copyAnyMap(event.Payload),
		CreatedAt: event.CreatedAt.UTC(),
	}
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	types := make([]core.EventType, 0, len(r.EventTypes))
	for _, value := range r.EventTypes {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		types = append(types, core.EventType(trimmed))
	}
	return core.Subscription{
		ID:               r.ID,
		TenantID:         r.TenantID,
		URL:              r.URL,
		Secret:           r.Secret,
		EventTypes:       types,
		Countries:        append([]string(nil), r.Countries...),
		IsActive:         r.IsActive,
		TimeoutSeconds:   r.TimeoutSeconds,
		MaxRetries:       r.MaxRetries,
		FailureThreshold: r.FailureThreshold,
		FailureCount:     r.FailureCount,
		LastSuccessAt:    cloneTimePointer(r.LastSuccessAt),
		LastFailureAt:    cloneTimePointer(r.LastFailureAt),
		PausedAt:         cloneTimePointer(r.PausedAt),
		PausedReason:     r.PausedReason,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func newSubscriptionRecord(sub core.Subscription) *subscriptionRecord {
	types := make([]string, 0, len(sub.EventTypes))
	for _, eventType := range sub.EventTypes {
		types = append(types, string(eventType))
	}
	countries := make([]string, 0, len(sub.Countries))
	for _, country := range sub.Countries {
		trimmed := strings.ToUpper(strings.TrimSpace(country))
		if trimmed != "" {
			countries = append(countries, trimmed)
		}
	}
	return &subscriptionRecord{
		ID:               strings.TrimSpace(sub.ID),
		TenantID:         sub.TenantID,
		URL:              strings.TrimSpace(sub.URL),
		Secret:           sub.Secret,
		EventTypes:       types,
		Countries:        countries,
		IsActive:         sub.IsActive,
		TimeoutSeconds:   sub.TimeoutSeconds,
		MaxRetries:       sub.MaxRetries,
		FailureThreshold: sub.FailureThreshold,
		FailureCount:     sub.FailureCount,
		LastSuccessAt:    cloneTimePointer(sub.LastSuccessAt),
		LastFailureAt:    cloneTimePointer(sub.LastFailureAt),
		PausedAt:         cloneTimePointer(sub.PausedAt),
		PausedReason:     sub.PausedReason,
		CreatedAt:        sub.CreatedAt.UTC(),
		UpdatedAt:        sub.UpdatedAt.UTC(),
	}
}

func (r *deliveryAttemptRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:             r.ID,
		EventID:        r.EventID,
		SubscriptionID: r.SubscriptionID,
		EventType:      core.EventType(r.EventType),
		AttemptCount:   r.AttemptCount,
		Status:         core.DeliveryStatus(r.Status),
		NextAttemptAt:  cloneTimePointer(r.NextAttemptAt),
		LastHTTPStatus: r.LastHTTPStatus,
		LastError:      r.LastError,
		ResponseBody:   r.ResponseBody,
		ResponseTimeMS: r.ResponseTimeMS,
		Version:        r.Version,
		DeliveredAt:    cloneTimePointer(r.DeliveredAt),
		ArchivedAt:     cloneTimePointer(r.ArchivedAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r *testDeliveryRecord) toDomain() core.TestDelivery {
	if r == nil {
		return core.TestDelivery{}
	}
	return core.TestDelivery{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		Success:        r.Success,
		HTTPStatus:     r.HTTPStatus,
		Error:          r.Error,
		ResponseBody:   r.ResponseBody,
		ResponseTimeMS: r.ResponseTimeMS,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func timePointer(value time.Time) *time.Time {
	utc := value.UTC()
	return &utc
}
