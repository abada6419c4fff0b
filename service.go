package resultlink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-resultlink/backend"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/events"
	"github.com/goliatone/go-resultlink/navigation"
	"github.com/goliatone/go-resultlink/providers/meta/facebook"
	"github.com/goliatone/go-resultlink/ratelimit"
	"github.com/goliatone/go-resultlink/resolver"
	"github.com/goliatone/go-resultlink/security"
	"github.com/goliatone/go-resultlink/token"
	"github.com/goliatone/go-resultlink/transport"
)

type Config = core.Config

type Option = core.Option

type Dependencies = core.Dependencies

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithClock             = core.WithClock
	WithTransport         = core.WithTransport
	WithResourceFetcher   = core.WithResourceFetcher
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service owns the token codec, the page resolver, the backend proxy, the
// Graph insights fetcher and the page view emitter, all built from one
// resolved dependency set.
type Service struct {
	deps       Dependencies
	keyring    *security.Keyring
	codec      *token.Codec
	navigation *navigation.Helper
	resolver   *resolver.Resolver
	backend    *backend.Client
	insights   *facebook.InsightsFetcher
	emitter    *events.Emitter
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return newService(cfg, nil, opts...)
}

// Setup builds the service and mounts the event sinks registered on hooks
// next to the default log and persistence sinks.
func Setup(cfg Config, hooks *ExtensionHooks, opts ...Option) (*Service, error) {
	return newService(cfg, hooks, opts...)
}

func newService(cfg Config, hooks *ExtensionHooks, opts ...Option) (*Service, error) {
	deps, err := core.ResolveDependencies(cfg, opts...)
	if err != nil {
		return nil, err
	}
	final := deps.Config
	mapBuild := func(err error) error {
		if mapped := deps.ErrorMapper(err); mapped != nil {
			return mapped
		}
		return err
	}

	keyring, err := security.NewKeyringFromConfig(final.Token)
	if err != nil {
		return nil, mapBuild(err)
	}
	codec, err := token.NewCodec(keyring,
		token.WithClock(deps.Clock),
		token.WithExpiryWindow(final.Token.ExpiryWindow),
	)
	if err != nil {
		return nil, mapBuild(err)
	}
	helper, err := navigation.NewHelper(codec, final.Routes)
	if err != nil {
		return nil, mapBuild(err)
	}

	adapter := deps.Transport
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}

	var client *backend.Client
	if strings.TrimSpace(final.Backend.BaseURL) != "" {
		client, err = backend.NewClient(adapter, final.Backend,
			backend.WithObserver(deps.Observer("backend")),
			backend.WithClock(deps.Clock),
		)
		if err != nil {
			return nil, mapBuild(err)
		}
	}
	fetcher := deps.ResourceFetcher
	if fetcher == nil && client != nil {
		fetcher = client
	}
	if fetcher == nil {
		return nil, mapBuild(fmt.Errorf("resultlink: backend.base_url or a resource fetcher is required"))
	}

	res, err := resolver.New(codec, fetcher,
		resolver.WithRoutes(helper.Routes()),
		resolver.WithObserver(deps.Observer("resolver")),
		resolver.WithClock(deps.Clock),
	)
	if err != nil {
		return nil, mapBuild(err)
	}

	insightOpts := []facebook.Option{
		facebook.WithObserver(deps.Observer("graph")),
		facebook.WithRateLimitPolicy(ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())),
	}
	if final.Graph.CacheTTL > 0 {
		cache, cacheErr := facebook.NewInsightsCache(final.Graph.CacheTTL)
		if cacheErr != nil {
			return nil, mapBuild(cacheErr)
		}
		insightOpts = append(insightOpts, facebook.WithCache(cache))
	}
	insights, err := facebook.NewInsightsFetcher(adapter, final.Graph, insightOpts...)
	if err != nil {
		return nil, mapBuild(err)
	}

	sinks := events.MultiSink{events.NewLogSink(deps.NamedLogger("events"))}
	if deps.PageViewRecorder != nil {
		sinks = append(sinks, events.RecorderSink{Recorder: deps.PageViewRecorder})
	}
	sinks = append(sinks, hooks.Sinks()...)
	emitter, err := events.NewEmitter(sinks,
		events.WithClock(deps.Clock),
		events.WithObserver(deps.Observer("events")),
	)
	if err != nil {
		return nil, mapBuild(err)
	}

	deps.Logger.Info("resultlink service ready",
		"service_name", final.ServiceName,
		"active_key_id", keyring.ActiveKeyID(),
		"key_ids", keyring.KeyIDs(),
		"backend_configured", client != nil,
		"graph_cache_ttl", final.Graph.CacheTTL.String(),
	)

	return &Service{
		deps:       deps,
		keyring:    keyring,
		codec:      codec,
		navigation: helper,
		resolver:   res,
		backend:    client,
		insights:   insights,
		emitter:    emitter,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.deps.Config
}

func (s *Service) Dependencies() Dependencies {
	if s == nil {
		return Dependencies{}
	}
	return s.deps
}

func (s *Service) Logger() core.Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.deps.Logger
}

func (s *Service) Routes() core.RoutesConfig {
	if s == nil {
		return core.DefaultConfig().Routes
	}
	return s.navigation.Routes()
}

func (s *Service) EncodeResultToken(id core.Identifier) (string, error) {
	if s == nil || s.codec == nil {
		return "", core.UnavailableError()
	}
	return s.codec.Encode(id)
}

func (s *Service) DecodeResultToken(raw string) (core.Identifier, error) {
	if s == nil || s.codec == nil {
		return "", core.UnavailableError()
	}
	return s.codec.Decode(raw)
}

func (s *Service) BuildSingleResultRoute(id core.Identifier) (string, error) {
	if s == nil || s.navigation == nil {
		return "", core.UnavailableError()
	}
	return s.navigation.BuildSingleResultRoute(id)
}

func (s *Service) BuildComparisonResultRoute(a core.Identifier, b core.Identifier) (string, error) {
	if s == nil || s.navigation == nil {
		return "", core.UnavailableError()
	}
	return s.navigation.BuildComparisonResultRoute(a, b)
}

func (s *Service) NavigateSingle(ctx context.Context, navigator navigation.Navigator, id core.Identifier) (string, error) {
	if s == nil || s.navigation == nil {
		return "", core.UnavailableError()
	}
	return s.navigation.NavigateSingle(ctx, navigator, id)
}

func (s *Service) NavigateComparison(ctx context.Context, navigator navigation.Navigator, a core.Identifier, b core.Identifier) (string, error) {
	if s == nil || s.navigation == nil {
		return "", core.UnavailableError()
	}
	return s.navigation.NavigateComparison(ctx, navigator, a, b)
}

func (s *Service) LoadSingle(ctx context.Context, query url.Values) *resolver.Page {
	return s.resolver.LoadSingle(ctx, query)
}

func (s *Service) LoadComparison(ctx context.Context, query url.Values) *resolver.Page {
	return s.resolver.LoadComparison(ctx, query)
}

// Forward relays a request to the configured backend. Without a backend base
// url every operation settles as a transport failure.
func (s *Service) Forward(ctx context.Context, op backend.Operation, req backend.Request) backend.Result {
	if s == nil || s.backend == nil {
		return backend.Err(backend.ErrorKindTransport, "backend: base url is not configured", 0)
	}
	return s.backend.Forward(ctx, op, req)
}

func (s *Service) CampaignInsights(ctx context.Context, req facebook.InsightsRequest) ([]facebook.CampaignInsights, error) {
	if s == nil || s.insights == nil {
		return nil, core.UnavailableError()
	}
	return s.insights.CampaignInsights(ctx, req)
}

func (s *Service) InvalidateCampaignInsights(ctx context.Context, req facebook.InsightsRequest) error {
	if s == nil || s.insights == nil {
		return core.UnavailableError()
	}
	return s.insights.Invalidate(ctx, req)
}

func (s *Service) PageView(ctx context.Context, view events.PageView) (events.Event, error) {
	if s == nil || s.emitter == nil {
		return events.Event{}, core.UnavailableError()
	}
	return s.emitter.PageView(ctx, view)
}
