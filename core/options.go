package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type builder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	clock             Clock
	transport         TransportAdapter
	resourceFetcher   ResourceFetcher
	persistenceClient any
	repositoryFactory any
}

type Option func(*builder)

func WithLogger(logger Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *builder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *builder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *builder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *builder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *builder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *builder) {
		b.optionsResolver = resolver
	}
}

func WithClock(clock Clock) Option {
	return func(b *builder) {
		b.clock = clock
	}
}

func WithTransport(adapter TransportAdapter) Option {
	return func(b *builder) {
		b.transport = adapter
	}
}

func WithResourceFetcher(fetcher ResourceFetcher) Option {
	return func(b *builder) {
		b.resourceFetcher = fetcher
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *builder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *builder) {
		b.repositoryFactory = factory
	}
}

// Dependencies is the resolved dependency set shared by every component of
// the service.
type Dependencies struct {
	Config            Config
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Clock             Clock
	Transport         TransportAdapter
	ResourceFetcher   ResourceFetcher
	PersistenceClient any
	RepositoryFactory any
	PageViewRecorder  PageViewRecorder
}

// NamedLogger returns a child logger from the provider, falling back to the
// root logger.
func (d Dependencies) NamedLogger(name string) Logger {
	if d.LoggerProvider != nil {
		if named := d.LoggerProvider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(d.Logger)
}

func (d Dependencies) Observer(name string) *Observer {
	return NewObserver(d.NamedLogger(name), d.MetricsRecorder)
}

func ResolveDependencies(runtime Config, options ...Option) (Dependencies, error) {
	b := defaultBuilder(runtime)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	provider, logger := glog.Resolve(DefaultServiceName, b.loggerProvider, b.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(DefaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if b.errorFactory == nil {
		b.errorFactory = goerrors.New
	}
	if b.errorMapper == nil {
		b.errorMapper = MapError
	}
	if b.metricsRecorder == nil {
		b.metricsRecorder = NopMetricsRecorder{}
	}
	if b.configProvider == nil {
		b.configProvider = NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = GoOptionsResolver{}
	}
	if b.clock == nil {
		b.clock = SystemClock{}
	}

	defaults := DefaultConfig()
	loaded, err := b.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return Dependencies{}, b.errorMapper(err)
	}
	final, err := b.optionsResolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return Dependencies{}, b.errorMapper(err)
	}

	deps := Dependencies{
		Config:            final,
		Logger:            logger,
		LoggerProvider:    provider,
		MetricsRecorder:   b.metricsRecorder,
		ErrorFactory:      b.errorFactory,
		ErrorMapper:       b.errorMapper,
		ConfigProvider:    b.configProvider,
		OptionsResolver:   b.optionsResolver,
		Clock:             b.clock,
		Transport:         b.transport,
		ResourceFetcher:   b.resourceFetcher,
		PersistenceClient: b.persistenceClient,
		RepositoryFactory: b.repositoryFactory,
	}

	if b.repositoryFactory != nil {
		switch factory := b.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			stores, buildErr := factory.BuildStores(b.persistenceClient)
			if buildErr != nil {
				return Dependencies{}, b.errorMapper(buildErr)
			}
			if stores != nil {
				deps.PageViewRecorder = stores.PageViewStore()
			}
		case StoreProvider:
			deps.PageViewRecorder = factory.PageViewStore()
		}
	}

	return deps, nil
}

func defaultBuilder(runtime Config) builder {
	loggerProvider, logger := glog.Resolve(DefaultServiceName, nil, nil)
	return builder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           SystemClock{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

// NewStaticRawConfigLoader serves a fixed map, mostly useful for tests and
// embedded defaults.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: copyAnyMap(values)}
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
		loader = staticRawConfigLoader{}
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
	return cfg, nil
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

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	token := map[string]any{}
	putString(token, "active_key_id", cfg.Token.ActiveKeyID, includeZero)
	if includeZero || len(cfg.Token.Keys) > 0 {
		keys := make(map[string]any, len(cfg.Token.Keys))
		for kid, secret := range cfg.Token.Keys {
			keys[kid] = secret
		}
		token["keys"] = keys
	}
	if includeZero || cfg.Token.ExpiryWindow != 0 {
		token["expiry_window"] = cfg.Token.ExpiryWindow
	}
	putSection(layer, "token", token)

	routes := map[string]any{}
	putString(routes, "single_result_path", cfg.Routes.SingleResultPath, includeZero)
	putString(routes, "comparison_result_path", cfg.Routes.ComparisonResultPath, includeZero)
	putString(routes, "token_param", cfg.Routes.TokenParam, includeZero)
	putString(routes, "token_param_a", cfg.Routes.TokenParamA, includeZero)
	putString(routes, "token_param_b", cfg.Routes.TokenParamB, includeZero)
	putSection(layer, "routes", routes)

	backend := map[string]any{}
	putString(backend, "base_url", cfg.Backend.BaseURL, includeZero)
	putString(backend, "analyze_path", cfg.Backend.AnalyzePath, includeZero)
	putString(backend, "upload_path", cfg.Backend.UploadPath, includeZero)
	putString(backend, "payment_path", cfg.Backend.PaymentPath, includeZero)
	putString(backend, "resource_path", cfg.Backend.ResourcePath, includeZero)
	if includeZero || cfg.Backend.Timeout != 0 {
		backend["timeout"] = cfg.Backend.Timeout
	}
	if includeZero || cfg.Backend.MaxResponseBodyBytes != 0 {
		backend["max_response_body_bytes"] = cfg.Backend.MaxResponseBodyBytes
	}
	putSection(layer, "backend", backend)

	graph := map[string]any{}
	putString(graph, "base_url", cfg.Graph.BaseURL, includeZero)
	putString(graph, "version", cfg.Graph.Version, includeZero)
	if includeZero || cfg.Graph.CacheTTL != 0 {
		graph["cache_ttl"] = cfg.Graph.CacheTTL
	}
	if includeZero || cfg.Graph.MaxConcurrency != 0 {
		graph["max_concurrency"] = cfg.Graph.MaxConcurrency
	}
	if includeZero || cfg.Graph.MaxPages != 0 {
		graph["max_pages"] = cfg.Graph.MaxPages
	}
	putSection(layer, "graph", graph)

	httpSection := map[string]any{}
	putString(httpSection, "addr", cfg.HTTP.Addr, includeZero)
	if includeZero || cfg.HTTP.ReadTimeout != 0 {
		httpSection["read_timeout"] = cfg.HTTP.ReadTimeout
	}
	if includeZero || cfg.HTTP.WriteTimeout != 0 {
		httpSection["write_timeout"] = cfg.HTTP.WriteTimeout
	}
	if includeZero || cfg.HTTP.ShutdownTimeout != 0 {
		httpSection["shutdown_timeout"] = cfg.HTTP.ShutdownTimeout
	}
	putSection(layer, "http", httpSection)

	eventsSection := map[string]any{}
	if includeZero || cfg.Events.RetentionTTL != 0 {
		eventsSection["retention_ttl"] = cfg.Events.RetentionTTL
	}
	if includeZero || cfg.Events.PruneInterval != 0 {
		eventsSection["prune_interval"] = cfg.Events.PruneInterval
	}
	putString(eventsSection, "queue", cfg.Events.Queue, includeZero)
	putSection(layer, "events", eventsSection)

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	putSection(layer, "database", database)

	return layer
}

func putString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}

func putSection(target map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		target[key] = section
	}
}
