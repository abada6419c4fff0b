package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-resultlink/providers/meta/facebook"
	"github.com/goliatone/go-resultlink/resolver"
)

var (
	_ gocmd.Querier[ResolveResultMessage, resolver.Snapshot]                = (*ResolveResultQuery)(nil)
	_ gocmd.Querier[ResolveComparisonMessage, resolver.Snapshot]            = (*ResolveComparisonQuery)(nil)
	_ gocmd.Querier[CampaignInsightsMessage, []facebook.CampaignInsights] = (*CampaignInsightsQuery)(nil)

	_ PageLoader     = (*resolver.Resolver)(nil)
	_ InsightsReader = (*facebook.InsightsFetcher)(nil)
)
