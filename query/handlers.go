package query

import (
	"context"

	"github.com/goliatone/go-relay/core"
)

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error)
	GetDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error)
	DeliveriesForEvent(ctx context.Context, eventID string) ([]core.DeliveryAttempt, error)
	DeadLetters(ctx context.Context, subscriptionID string, limit int) ([]core.DeliveryAttempt, error)
	StatusCounts(ctx context.Context, filter core.StatusCountFilter) (core.StatusCounts, error)
}

type SubscriptionHealthReader interface {
	SubscriptionHealth(ctx context.Context, subscriptionID string) (core.SubscriptionHealth, error)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) (core.DeliveryPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryPage{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryAttempt{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.DeliveryID)
}

type DeliveriesForEventQuery struct {
	reader DeliveryReader
}

func NewDeliveriesForEventQuery(reader DeliveryReader) *DeliveriesForEventQuery {
	return &DeliveriesForEventQuery{reader: reader}
}

func (q *DeliveriesForEventQuery) Query(ctx context.Context, msg DeliveriesForEventMessage) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.DeliveriesForEvent(ctx, msg.EventID)
}

type DeadLettersQuery struct {
	reader DeliveryReader
}

func NewDeadLettersQuery(reader DeliveryReader) *DeadLettersQuery {
	return &DeadLettersQuery{reader: reader}
}

func (q *DeadLettersQuery) Query(ctx context.Context, msg DeadLettersMessage) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.DeadLetters(ctx, msg.SubscriptionID, msg.Limit)
}

type StatusCountsQuery struct {
	reader DeliveryReader
}

func NewStatusCountsQuery(reader DeliveryReader) *StatusCountsQuery {
	return &StatusCountsQuery{reader: reader}
}

func (q *StatusCountsQuery) Query(ctx context.Context, msg StatusCountsMessage) (core.StatusCounts, error) {
	if q == nil || q.reader == nil {
		return core.StatusCounts{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.StatusCounts(ctx, msg.Filter)
}

type SubscriptionHealthQuery struct {
	reader SubscriptionHealthReader
}

func NewSubscriptionHealthQuery(reader SubscriptionHealthReader) *SubscriptionHealthQuery {
	return &SubscriptionHealthQuery{reader: reader}
}

func (q *SubscriptionHealthQuery) Query(ctx context.Context, msg SubscriptionHealthMessage) (core.SubscriptionHealth, error) {
	if q == nil || q.reader == nil {
		return core.SubscriptionHealth{}, queryDependencyError("query: subscription health reader is required")
	}
	return q.reader.SubscriptionHealth(ctx, msg.SubscriptionID)
}
