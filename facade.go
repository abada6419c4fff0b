package resultlink

import (
	"fmt"

	resultcommand "github.com/goliatone/go-resultlink/command"
	resultquery "github.com/goliatone/go-resultlink/query"
)

type CommandQueryService interface {
	resultcommand.PageViewEmitter
	resultcommand.BackendProxy
	resultcommand.RouteNavigator
	resultquery.PageLoader
	resultquery.InsightsReader
}

type Commands struct {
	EmitPageView       *resultcommand.EmitPageViewCommand
	ProxyAnalyze       *resultcommand.ProxyCommand[resultcommand.ProxyAnalyzeMessage]
	ProxyUpload        *resultcommand.ProxyCommand[resultcommand.ProxyUploadMessage]
	ProxyPayment       *resultcommand.ProxyCommand[resultcommand.ProxyPaymentMessage]
	NavigateSingle     *resultcommand.NavigateSingleCommand
	NavigateComparison *resultcommand.NavigateComparisonCommand
}

type Queries struct {
	ResolveResult     *resultquery.ResolveResultQuery
	ResolveComparison *resultquery.ResolveComparisonQuery
	CampaignInsights  *resultquery.CampaignInsightsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	hooks *ExtensionHooks
}

// WithExtensionHooks builds every command/query bundle registered on hooks
// against the facade's service.
func WithExtensionHooks(hooks *ExtensionHooks) FacadeOption {
	return func(options *facadeOptions) {
		options.hooks = hooks
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("resultlink: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	bundles, err := cfg.hooks.BuildCommandQueryBundles(service)
	if err != nil {
		return nil, err
	}

	facade := &Facade{service: service, bundles: bundles}
	facade.commands = Commands{
		EmitPageView:       resultcommand.NewEmitPageViewCommand(service),
		ProxyAnalyze:       resultcommand.NewProxyAnalyzeCommand(service),
		ProxyUpload:        resultcommand.NewProxyUploadCommand(service),
		ProxyPayment:       resultcommand.NewProxyPaymentCommand(service),
		NavigateSingle:     resultcommand.NewNavigateSingleCommand(service),
		NavigateComparison: resultcommand.NewNavigateComparisonCommand(service),
	}
	facade.queries = Queries{
		ResolveResult:     resultquery.NewResolveResultQuery(service),
		ResolveComparison: resultquery.NewResolveComparisonQuery(service),
		CampaignInsights:  resultquery.NewCampaignInsightsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}

var _ CommandQueryService = (*Service)(nil)
