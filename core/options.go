package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	eventStore        EventStore
	subscriptionStore SubscriptionStore
	attemptStore      AttemptStore
	testDeliveryStore TestDeliveryStore
	statusCounter     StatusCounter
	httpClient        HTTPDoer
	limiter           OutboundLimiter
	jobEnqueuer       JobEnqueuer
	clock             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts a RepositoryStoreFactory; stores not set
// explicitly are built from it using the persistence client.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithEventStore(store EventStore) Option {
	return func(b *serviceBuilder) {
		b.eventStore = store
	}
}

func WithSubscriptionStore(store SubscriptionStore) Option {
	return func(b *serviceBuilder) {
		b.subscriptionStore = store
	}
}

func WithAttemptStore(store AttemptStore) Option {
	return func(b *serviceBuilder) {
		b.attemptStore = store
	}
}

func WithTestDeliveryStore(store TestDeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.testDeliveryStore = store
	}
}

func WithStatusCounter(counter StatusCounter) Option {
	return func(b *serviceBuilder) {
		b.statusCounter = counter
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

func WithOutboundLimiter(limiter OutboundLimiter) Option {
	return func(b *serviceBuilder) {
		b.limiter = limiter
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("relay", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return relayErrorMapper(err)
}

// NewDeliveryHTTPClient returns a client that never follows redirects; a 3xx
// response is handed back to the caller and classified as a failure.
func NewDeliveryHTTPClient() *http.Client {
	return &http.Client{CheckRedirect: noRedirect}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if explicitZeroMaxAttempts(raw) {
		cfg.Delivery.MaxAttempts = UnboundedAttempts
	}
	return cfg, nil
}

// explicitZeroMaxAttempts reports a max_attempts key present with a zero value,
// which would otherwise read as unset once layered.
func explicitZeroMaxAttempts(raw map[string]any) bool {
	delivery, ok := raw["delivery"].(map[string]any)
	if !ok {
		return false
	}
	value, ok := delivery["max_attempts"]
	if !ok || value == nil {
		return false
	}
	return strings.TrimSpace(fmt.Sprint(value)) == "0"
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap renders a config as an options layer. Non-default layers
// only carry non-zero fields; use UnboundedAttempts to clear max_attempts.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	delivery := map[string]any{}
	putInt(delivery, "timeout_seconds", cfg.Delivery.TimeoutSeconds, includeZero)
	putInt(delivery, "max_attempts", cfg.Delivery.MaxAttempts, includeZero)
	putInt(delivery, "concurrency", cfg.Delivery.Concurrency, includeZero)
	putInt(delivery, "batch_size", cfg.Delivery.BatchSize, includeZero)
	putInt(delivery, "stale_after_seconds", cfg.Delivery.StaleAfterSeconds, includeZero)
	putInt(delivery, "response_body_limit", cfg.Delivery.ResponseBodyLimit, includeZero)
	putString(delivery, "user_agent", cfg.Delivery.UserAgent, includeZero)
	if includeZero || len(cfg.Delivery.BackoffSeconds) > 0 {
		delivery["backoff_seconds"] = append([]int(nil), cfg.Delivery.BackoffSeconds...)
	}
	putSection(layer, "delivery", delivery)

	signing := map[string]any{}
	putString(signing, "signature_header", cfg.Signing.SignatureHeader, includeZero)
	putString(signing, "timestamp_header", cfg.Signing.TimestampHeader, includeZero)
	putString(signing, "event_type_header", cfg.Signing.EventTypeHeader, includeZero)
	putString(signing, "delivery_id_header", cfg.Signing.DeliveryIDHeader, includeZero)
	putString(signing, "signature_prefix", cfg.Signing.SignaturePrefix, includeZero)
	putSection(layer, "signing", signing)

	health := map[string]any{}
	putInt(health, "failure_cap", cfg.Health.FailureCap, includeZero)
	putInt(health, "auto_pause_threshold", cfg.Health.AutoPauseThreshold, includeZero)
	if includeZero || cfg.Health.AutoPause {
		health["auto_pause"] = cfg.Health.AutoPause
	}
	putSection(layer, "health", health)

	outbound := map[string]any{}
	if includeZero || cfg.Outbound.RatePerSecond != 0 {
		outbound["rate_per_second"] = cfg.Outbound.RatePerSecond
	}
	putInt(outbound, "burst", cfg.Outbound.Burst, includeZero)
	putSection(layer, "outbound", outbound)

	retention := map[string]any{}
	putInt(retention, "archive_after_hours", cfg.Retention.ArchiveAfterHours, includeZero)
	putSection(layer, "retention", retention)
	return layer
}

func putInt(section map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
