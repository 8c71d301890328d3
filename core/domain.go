package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrEventNotFound        = errors.New("core: event not found")
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
	ErrAttemptNotFound      = errors.New("core: delivery attempt not found")
	ErrUnknownEventType     = errors.New("core: unknown event type")
	ErrInvalidMode          = errors.New("core: invalid invocation mode")
)

type EventType string

const (
	EventTypeScooterRegistered       EventType = "scooter_registered"
	EventTypeScooterStatusChanged    EventType = "scooter_status_changed"
	EventTypeScooterDecommissioned   EventType = "scooter_decommissioned"
	EventTypeServiceJobCreated       EventType = "service_job_created"
	EventTypeServiceJobCompleted     EventType = "service_job_completed"
	EventTypeServiceJobCancelled     EventType = "service_job_cancelled"
	EventTypeFirmwareUpdateStarted   EventType = "firmware_update_started"
	EventTypeFirmwareUpdateCompleted EventType = "firmware_update_completed"
	EventTypeFirmwareUpdateFailed    EventType = "firmware_update_failed"
	EventTypeUserRegistered          EventType = "user_registered"
	EventTypeUserScooterLinked       EventType = "user_scooter_linked"
	EventTypeUserScooterUnlinked     EventType = "user_scooter_unlinked"

	// EventTypeTest is reserved for test deliveries and is never matched.
	EventTypeTest EventType = "webhook.test"
)

var partnerEventTypes = []EventType{
	EventTypeScooterRegistered,
	EventTypeScooterStatusChanged,
	EventTypeScooterDecommissioned,
	EventTypeServiceJobCreated,
	EventTypeServiceJobCompleted,
	EventTypeServiceJobCancelled,
	EventTypeFirmwareUpdateStarted,
	EventTypeFirmwareUpdateCompleted,
	EventTypeFirmwareUpdateFailed,
	EventTypeUserRegistered,
	EventTypeUserScooterLinked,
	EventTypeUserScooterUnlinked,
}

// PartnerEventTypes returns the partner-visible allow-list.
func PartnerEventTypes() []EventType {
	return append([]EventType(nil), partnerEventTypes...)
}

func (t EventType) PartnerVisible() bool {
	return slices.Contains(partnerEventTypes, t)
}

func (t EventType) String() string {
	return string(t)
}

// ParseEventType validates a stored or caller-provided event type. The reserved
// test type is accepted so test rows round-trip; it is still never matched.
func ParseEventType(value string) (EventType, error) {
	candidate := EventType(strings.TrimSpace(strings.ToLower(value)))
	if candidate == EventTypeTest || candidate.PartnerVisible() {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, value)
}

// ParseEventTypes parses a subscription's stored type list, dropping
// duplicates and rejecting unknown values.
func ParseEventTypes(values []string) ([]EventType, error) {
	out := make([]EventType, 0, len(values))
	for _, value := range values {
		parsed, err := ParseEventType(value)
		if err != nil {
			return nil, err
		}
		if slices.Contains(out, parsed) {
			continue
		}
		out = append(out, parsed)
	}
	return out, nil
}

type Event struct {
	ID        string
	Type      EventType
	TenantID  string
	Country   string
	ScooterID string
	UserID    string
	Payload   map[string]any
	CreatedAt time.Time
}

type Subscription struct {
	ID               string
	TenantID         string
	URL              string
	Secret           string
	EventTypes       []EventType
	Countries        []string
	IsActive         bool
	TimeoutSeconds   int
	MaxRetries       int
	FailureThreshold int
	FailureCount     int
	LastSuccessAt    *time.Time
	LastFailureAt    *time.Time
	PausedAt         *time.Time
	PausedReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Deliverable reports whether the subscription may receive traffic.
func (s Subscription) Deliverable() bool {
	return s.IsActive && s.PausedAt == nil
}

type DeliveryStatus string

const (
	DeliveryStatusPending         DeliveryStatus = "pending"
	DeliveryStatusSucceeded       DeliveryStatus = "succeeded"
	DeliveryStatusFailedRetrying  DeliveryStatus = "failed_retrying"
	DeliveryStatusFailedExhausted DeliveryStatus = "failed_exhausted"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSucceeded || s == DeliveryStatusFailedExhausted
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending,
		DeliveryStatusSucceeded,
		DeliveryStatusFailedRetrying,
		DeliveryStatusFailedExhausted:
		return true
	default:
		return false
	}
}

type DeliveryAttempt struct {
	ID             string
	EventID        string
	SubscriptionID string
	EventType      EventType
	AttemptCount   int
	Status         DeliveryStatus
	NextAttemptAt  *time.Time
	LastHTTPStatus int
	LastError      string
	ResponseBody   string
	ResponseTimeMS int64
	Version        int
	DeliveredAt    *time.Time
	ArchivedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NewDeliveryAttempt struct {
	EventID        string
	SubscriptionID string
	EventType      EventType
	CreatedAt      time.Time
}

// AttemptResult is the raw outcome of one outbound request. It carries no
// retry decision.
type AttemptResult struct {
	Success      bool
	HTTPStatus   int
	Error        string
	ResponseBody string
	ResponseTime time.Duration
}

type TestDelivery struct {
	ID             string
	SubscriptionID string
	Success        bool
	HTTPStatus     int
	Error          string
	ResponseBody   string
	ResponseTimeMS int64
	CreatedAt      time.Time
}

type HealthUpdate struct {
	SubscriptionID string
	Success        bool
	At             time.Time
	FailureCap     int
	// PauseThreshold of zero disables auto-pause.
	PauseThreshold int
}

type SubscriptionHealth struct {
	SubscriptionID string
	IsActive       bool
	FailureCount   int
	LastSuccessAt  *time.Time
	LastFailureAt  *time.Time
	PausedAt       *time.Time
	PausedReason   string
}

func HealthFromSubscription(sub Subscription) SubscriptionHealth {
	return SubscriptionHealth{
		SubscriptionID: sub.ID,
		IsActive:       sub.IsActive,
		FailureCount:   sub.FailureCount,
		LastSuccessAt:  cloneTime(sub.LastSuccessAt),
		LastFailureAt:  cloneTime(sub.LastFailureAt),
		PausedAt:       cloneTime(sub.PausedAt),
		PausedReason:   sub.PausedReason,
	}
}

type DeliverySummary struct {
	Delivered       int      `json:"delivered"`
	Failed          int      `json:"failed"`
	Exhausted       int      `json:"exhausted"`
	Deduplicated    int      `json:"deduplicated,omitempty"`
	Skipped         int      `json:"skipped,omitempty"`
	UnknownEventIDs []string `json:"unknown_event_ids,omitempty"`
}

type TestDeliveryResult struct {
	Success        bool   `json:"success"`
	HTTPStatus     int    `json:"http_status,omitempty"`
	Error          string `json:"error,omitempty"`
	TestDeliveryID string `json:"test_delivery_id,omitempty"`
}

type StatusCounts struct {
	Pending         int `json:"pending"`
	Succeeded       int `json:"succeeded"`
	FailedRetrying  int `json:"failed_retrying"`
	FailedExhausted int `json:"failed_exhausted"`
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Succeeded + c.FailedRetrying + c.FailedExhausted
}

type StatusCountFilter struct {
	SubscriptionID  string
	IncludeArchived bool
}

type DeliveryFilter struct {
	EventID         string
	SubscriptionID  string
	Status          DeliveryStatus
	IncludeArchived bool
	Limit           int
	Offset          int
}

type DeliveryPage struct {
	Items []DeliveryAttempt
	Total int
}

type DueQuery struct {
	Now         time.Time
	StaleBefore time.Time
	Limit       int
}

type Mode string

const (
	ModeEvent Mode = "event"
	ModeRetry Mode = "retry"
	ModeTest  Mode = "test"
)

type InvocationRequest struct {
	Mode           Mode     `json:"mode"`
	EventIDs       []string `json:"event_ids,omitempty"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
}

type InvocationResponse struct {
	Mode    Mode                `json:"mode"`
	Summary *DeliverySummary    `json:"summary,omitempty"`
	Test    *TestDeliveryResult `json:"test,omitempty"`
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
