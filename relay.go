package relay

import "github.com/goliatone/go-relay/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Event = core.Event
type EventType = core.EventType
type Subscription = core.Subscription
type DeliveryAttempt = core.DeliveryAttempt
type DeliveryStatus = core.DeliveryStatus
type DeliverySummary = core.DeliverySummary
type TestDeliveryResult = core.TestDeliveryResult
type InvocationRequest = core.InvocationRequest
type InvocationResponse = core.InvocationResponse

type EventStore = core.EventStore
type SubscriptionStore = core.SubscriptionStore
type AttemptStore = core.AttemptStore
type TestDeliveryStore = core.TestDeliveryStore
type StatusCounter = core.StatusCounter

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithEventStore        = core.WithEventStore
	WithSubscriptionStore = core.WithSubscriptionStore
	WithAttemptStore      = core.WithAttemptStore
	WithTestDeliveryStore = core.WithTestDeliveryStore
	WithStatusCounter     = core.WithStatusCounter
	WithHTTPClient        = core.WithHTTPClient
	WithOutboundLimiter   = core.WithOutboundLimiter
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
