package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

type stubReader struct {
	lastFilter core.DeliveryFilter
	lastLimit  int
	lastID     string
}

func (s *stubReader) ListDeliveries(_ context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	s.lastFilter = filter
	return core.DeliveryPage{Items: []core.DeliveryAttempt{{ID: "del_1"}}, Total: 1}, nil
}

func (s *stubReader) GetDelivery(_ context.Context, id string) (core.DeliveryAttempt, error) {
	s.lastID = id
	return core.DeliveryAttempt{ID: id, Status: core.DeliveryStatusSucceeded}, nil
}

func (s *stubReader) DeliveriesForEvent(_ context.Context, eventID string) ([]core.DeliveryAttempt, error) {
	s.lastID = eventID
	return []core.DeliveryAttempt{{ID: "del_2", EventID: eventID}}, nil
}

func (s *stubReader) DeadLetters(_ context.Context, subscriptionID string, limit int) ([]core.DeliveryAttempt, error) {
	s.lastID = subscriptionID
	s.lastLimit = limit
	return []core.DeliveryAttempt{{ID: "del_3", Status: core.DeliveryStatusFailedExhausted}}, nil
}

func (s *stubReader) StatusCounts(context.Context, core.StatusCountFilter) (core.StatusCounts, error) {
	return core.StatusCounts{Pending: 1, FailedExhausted: 2}, nil
}

func (s *stubReader) SubscriptionHealth(_ context.Context, subscriptionID string) (core.SubscriptionHealth, error) {
	return core.SubscriptionHealth{SubscriptionID: subscriptionID, FailureCount: 3}, nil
}

func TestQueries_DelegateToReader(t *testing.T) {
	ctx := context.Background()
	reader := &stubReader{}

	page, err := NewListDeliveriesQuery(reader).Query(ctx, ListDeliveriesMessage{Filter: core.DeliveryFilter{Status: core.DeliveryStatusPending, Limit: 5}})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if page.Total != 1 || reader.lastFilter.Limit != 5 || reader.lastFilter.Status != core.DeliveryStatusPending {
		t.Fatalf("unexpected list delegation page=%#v filter=%#v", page, reader.lastFilter)
	}

	attempt, err := NewGetDeliveryQuery(reader).Query(ctx, GetDeliveryMessage{DeliveryID: "del_1"})
	if err != nil || attempt.ID != "del_1" {
		t.Fatalf("get delivery: attempt=%#v err=%v", attempt, err)
	}

	byEvent, err := NewDeliveriesForEventQuery(reader).Query(ctx, DeliveriesForEventMessage{EventID: "evt_1"})
	if err != nil || len(byEvent) != 1 || byEvent[0].EventID != "evt_1" {
		t.Fatalf("deliveries for event: %#v err=%v", byEvent, err)
	}

	dead, err := NewDeadLettersQuery(reader).Query(ctx, DeadLettersMessage{SubscriptionID: "sub_1", Limit: 10})
	if err != nil || len(dead) != 1 || reader.lastLimit != 10 || reader.lastID != "sub_1" {
		t.Fatalf("dead letters: %#v err=%v", dead, err)
	}

	counts, err := NewStatusCountsQuery(reader).Query(ctx, StatusCountsMessage{})
	if err != nil || counts.Total() != 3 {
		t.Fatalf("status counts: %#v err=%v", counts, err)
	}

	health, err := NewSubscriptionHealthQuery(reader).Query(ctx, SubscriptionHealthMessage{SubscriptionID: "sub_1"})
	if err != nil || health.FailureCount != 3 {
		t.Fatalf("subscription health: %#v err=%v", health, err)
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"bad status":       ListDeliveriesMessage{Filter: core.DeliveryFilter{Status: "lost"}},
		"negative offset":  ListDeliveriesMessage{Filter: core.DeliveryFilter{Offset: -1}},
		"missing delivery": GetDeliveryMessage{},
		"missing event":    DeliveriesForEventMessage{EventID: " "},
		"negative limit":   DeadLettersMessage{Limit: -1},
		"missing sub":      SubscriptionHealthMessage{},
	}
	for name, msg := range cases {
		err := msg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.RelayErrorBadInput {
			t.Fatalf("%s: unexpected envelope category=%q text=%q", name, rich.Category, rich.TextCode)
		}
	}
}

func TestQuery_NilReaderReturnsRichError(t *testing.T) {
	_, err := NewStatusCountsQuery(nil).Query(context.Background(), StatusCountsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
