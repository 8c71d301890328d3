package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/core"
)

var (
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage]           = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryAttempt]           = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[DeliveriesForEventMessage, []core.DeliveryAttempt]  = (*DeliveriesForEventQuery)(nil)
	_ gocmd.Querier[DeadLettersMessage, []core.DeliveryAttempt]         = (*DeadLettersQuery)(nil)
	_ gocmd.Querier[StatusCountsMessage, core.StatusCounts]             = (*StatusCountsQuery)(nil)
	_ gocmd.Querier[SubscriptionHealthMessage, core.SubscriptionHealth] = (*SubscriptionHealthQuery)(nil)
)
