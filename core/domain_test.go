package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType(" Scooter_Status_Changed ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != EventTypeScooterStatusChanged {
		t.Fatalf("unexpected event type %q", got)
	}
	if _, err := ParseEventType("billing_invoice_created"); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected unknown event type, got %v", err)
	}
	testType, err := ParseEventType(string(EventTypeTest))
	if err != nil {
		t.Fatalf("expected reserved test type to parse: %v", err)
	}
	if testType.PartnerVisible() {
		t.Fatalf("expected test event type to stay outside the allow-list")
	}
}

func TestParseEventTypes_RejectsUnknownMembers(t *testing.T) {
	types, err := ParseEventTypes([]string{"user_registered", "firmware_update_failed"})
	if err != nil || len(types) != 2 {
		t.Fatalf("unexpected parse result %v %v", types, err)
	}
	if _, err := ParseEventTypes([]string{"user_registered", "nope"}); err == nil {
		t.Fatalf("expected error for unknown member")
	}
}

func TestPartnerEventTypes_ReturnsCopy(t *testing.T) {
	types := PartnerEventTypes()
	if len(types) != 12 {
		t.Fatalf("expected 12 partner event types, got %d", len(types))
	}
	types[0] = "mutated"
	if PartnerEventTypes()[0] == "mutated" {
		t.Fatalf("expected allow-list to be immutable")
	}
}

func TestDeliveryStatus_Terminal(t *testing.T) {
	if DeliveryStatusPending.Terminal() || DeliveryStatusFailedRetrying.Terminal() {
		t.Fatalf("expected non-terminal statuses")
	}
	if !DeliveryStatusSucceeded.Terminal() || !DeliveryStatusFailedExhausted.Terminal() {
		t.Fatalf("expected terminal statuses")
	}
	if DeliveryStatus("archived").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestSubscription_Deliverable(t *testing.T) {
	sub := Subscription{IsActive: true}
	if !sub.Deliverable() {
		t.Fatalf("expected active subscription to be deliverable")
	}
	pausedAt := time.Now()
	sub.PausedAt = &pausedAt
	if sub.Deliverable() {
		t.Fatalf("expected paused subscription to be excluded")
	}
}

func TestHealthFromSubscription_CopiesTimes(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := Subscription{ID: "sub_1", IsActive: true, FailureCount: 4, LastFailureAt: &at}
	health := HealthFromSubscription(sub)
	if health.FailureCount != 4 || health.LastFailureAt == nil || !health.LastFailureAt.Equal(at) {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.LastFailureAt == sub.LastFailureAt {
		t.Fatalf("expected a copied timestamp")
	}
}
