package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-relay/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db          *bun.DB
	statusCache repositorycache.CacheService

	eventStore        *EventStore
	subscriptionStore *SubscriptionStore
	attemptStore      *AttemptStore
	testDeliveryStore *TestDeliveryStore
	statusCounter     core.StatusCounter
}

type FactoryOption func(*RepositoryFactory)

// WithStatusCountCache serves StatusCounter reads through the given cache.
func WithStatusCountCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.statusCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.attemptStore != nil && f.subscriptionStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EventStore() core.EventStore {
	if f == nil || f.eventStore == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil || f.subscriptionStore == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) AttemptStore() core.AttemptStore {
	if f == nil || f.attemptStore == nil {
		return nil
	}
	return f.attemptStore
}

func (f *RepositoryFactory) TestDeliveryStore() core.TestDeliveryStore {
	if f == nil || f.testDeliveryStore == nil {
		return nil
	}
	return f.testDeliveryStore
}

func (f *RepositoryFactory) StatusCounter() core.StatusCounter {
	if f == nil {
		return nil
	}
	return f.statusCounter
}

// Events, Subscriptions, Attempts and TestDeliveries expose the concrete
// stores for seeding and administration.
func (f *RepositoryFactory) Events() *EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) Subscriptions() *SubscriptionStore {
	if f == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) Attempts() *AttemptStore {
	if f == nil {
		return nil
	}
	return f.attemptStore
}

func (f *RepositoryFactory) TestDeliveries() *TestDeliveryStore {
	if f == nil {
		return nil
	}
	return f.testDeliveryStore
}

func (f *RepositoryFactory) initStores() error {
	eventStore, err := NewEventStore(f.db)
	if err != nil {
		return err
	}
	f.eventStore = eventStore
	subscriptionStore, err := NewSubscriptionStore(f.db)
	if err != nil {
		return err
	}
	f.subscriptionStore = subscriptionStore
	attemptStore, err := NewAttemptStore(f.db)
	if err != nil {
		return err
	}
	f.attemptStore = attemptStore
	testDeliveryStore, err := NewTestDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.testDeliveryStore = testDeliveryStore

	f.statusCounter = attemptStore
	if f.statusCache != nil {
		cached, err := NewCachedStatusCounter(attemptStore, f.statusCache)
		if err != nil {
			return err
		}
		f.statusCounter = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
