package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	relay "github.com/goliatone/go-relay"
	relaycommand "github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
	relayquery "github.com/goliatone/go-relay/query"
)

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterRelay registers every facade command and query with the registry
// and subscribes them on the dispatcher. On failure nothing stays subscribed.
func RegisterRelay(adapter *RegistryAdapter, facade *relay.Facade, runnerOpts ...runner.Option) (Subscriptions, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: relay facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	var subs Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.DeliverEventsMessage](adapter, commands.DeliverEvents, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.RetryDueMessage](adapter, commands.RetryDue, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.SendTestMessage](adapter, commands.SendTest, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.InvokeMessage](adapter, commands.Invoke, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.EnqueueEventsMessage](adapter, commands.EnqueueEvents, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[relaycommand.ArchiveTerminalMessage](adapter, commands.ArchiveTerminal, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.ListDeliveriesMessage, core.DeliveryPage](adapter, queries.ListDeliveries, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.GetDeliveryMessage, core.DeliveryAttempt](adapter, queries.GetDelivery, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.DeliveriesForEventMessage, []core.DeliveryAttempt](adapter, queries.DeliveriesForEvent, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.DeadLettersMessage, []core.DeliveryAttempt](adapter, queries.DeadLetters, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.StatusCountsMessage, core.StatusCounts](adapter, queries.StatusCounts, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[relayquery.SubscriptionHealthMessage, core.SubscriptionHealth](adapter, queries.SubscriptionHealth, runnerOpts...)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, subscription)
	}
	return subs, nil
}
