package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/time/rate"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	eventStore        EventStore
	subscriptionStore SubscriptionStore
	attemptStore      AttemptStore
	testDeliveryStore TestDeliveryStore
	statusCounter     StatusCounter
	executor          *Executor
	scheduler         Scheduler
	limiter           OutboundLimiter
	jobEnqueuer       JobEnqueuer
	clock             func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	PersistenceClient any
	RepositoryFactory any
	EventStore        EventStore
	SubscriptionStore SubscriptionStore
	AttemptStore      AttemptStore
	TestDeliveryStore TestDeliveryStore
	StatusCounter     StatusCounter
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("relay"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := builder.resolveStores(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.eventStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: event store is required"))
	}
	if builder.subscriptionStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: subscription store is required"))
	}
	if builder.attemptStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: attempt store is required"))
	}
	if builder.statusCounter == nil {
		if counter, ok := builder.attemptStore.(StatusCounter); ok {
			builder.statusCounter = counter
		}
	}
	if builder.limiter == nil && finalConfig.Outbound.RatePerSecond > 0 {
		burst := finalConfig.Outbound.Burst
		if burst <= 0 {
			burst = 1
		}
		builder.limiter = rate.NewLimiter(rate.Limit(finalConfig.Outbound.RatePerSecond), burst)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		eventStore:        builder.eventStore,
		subscriptionStore: builder.subscriptionStore,
		attemptStore:      builder.attemptStore,
		testDeliveryStore: builder.testDeliveryStore,
		statusCounter:     builder.statusCounter,
		executor:          NewExecutor(builder.httpClient, finalConfig, builder.clock),
		scheduler:         NewScheduler(finalConfig),
		limiter:           builder.limiter,
		jobEnqueuer:       builder.jobEnqueuer,
		clock:             builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (b *serviceBuilder) resolveStores() error {
	if b.repositoryFactory == nil {
		return nil
	}
	if b.eventStore != nil && b.subscriptionStore != nil && b.attemptStore != nil && b.testDeliveryStore != nil {
		return nil
	}
	var provider StoreProvider
	if factory, ok := b.repositoryFactory.(RepositoryStoreFactory); ok {
		built, err := factory.BuildStores(b.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	} else if direct, ok := b.repositoryFactory.(StoreProvider); ok {
		provider = direct
	}
	if provider == nil {
		return fmt.Errorf("core: unsupported repository factory type %T", b.repositoryFactory)
	}
	if b.eventStore == nil {
		b.eventStore = provider.EventStore()
	}
	if b.subscriptionStore == nil {
		b.subscriptionStore = provider.SubscriptionStore()
	}
	if b.attemptStore == nil {
		b.attemptStore = provider.AttemptStore()
	}
	if b.testDeliveryStore == nil {
		b.testDeliveryStore = provider.TestDeliveryStore()
	}
	if b.statusCounter == nil {
		b.statusCounter = provider.StatusCounter()
	}
	return nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		EventStore:        s.eventStore,
		SubscriptionStore: s.subscriptionStore,
		AttemptStore:      s.attemptStore,
		TestDeliveryStore: s.testDeliveryStore,
		StatusCounter:     s.statusCounter,
		JobEnqueuer:       s.jobEnqueuer,
	}
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) mapError(err error) error {
	return mapBuildError(s.errorMapper, err)
}
