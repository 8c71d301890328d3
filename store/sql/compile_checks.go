package sqlstore

import "github.com/goliatone/go-relay/core"

var (
	_ core.EventStore             = (*EventStore)(nil)
	_ core.SubscriptionStore      = (*SubscriptionStore)(nil)
	_ core.AttemptStore           = (*AttemptStore)(nil)
	_ core.StatusCounter          = (*AttemptStore)(nil)
	_ core.TestDeliveryStore      = (*TestDeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
