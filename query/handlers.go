package query

import (
	"context"
	"net/url"

	"github.com/goliatone/go-resultlink/providers/meta/facebook"
	"github.com/goliatone/go-resultlink/resolver"
)

type PageLoader interface {
	LoadSingle(ctx context.Context, query url.Values) *resolver.Page
	LoadComparison(ctx context.Context, query url.Values) *resolver.Page
}

type InsightsReader interface {
	CampaignInsights(ctx context.Context, req facebook.InsightsRequest) ([]facebook.CampaignInsights, error)
}

type ResolveResultQuery struct {
	loader PageLoader
}

func NewResolveResultQuery(loader PageLoader) *ResolveResultQuery {
	return &ResolveResultQuery{loader: loader}
}

// Query loads the single result page and waits for it to settle. The returned
// snapshot carries the presentation; token and fetch failures are not query
// errors.
func (q *ResolveResultQuery) Query(ctx context.Context, msg ResolveResultMessage) (resolver.Snapshot, error) {
	if q == nil || q.loader == nil {
		return resolver.Snapshot{}, queryDependencyError("query: page loader is required")
	}
	return settle(ctx, q.loader.LoadSingle(ctx, msg.Query))
}

type ResolveComparisonQuery struct {
	loader PageLoader
}

func NewResolveComparisonQuery(loader PageLoader) *ResolveComparisonQuery {
	return &ResolveComparisonQuery{loader: loader}
}

func (q *ResolveComparisonQuery) Query(ctx context.Context, msg ResolveComparisonMessage) (resolver.Snapshot, error) {
	if q == nil || q.loader == nil {
		return resolver.Snapshot{}, queryDependencyError("query: page loader is required")
	}
	return settle(ctx, q.loader.LoadComparison(ctx, msg.Query))
}

// settle waits for page and closes it when the caller gives up first, so a
// late fetch result is discarded.
func settle(ctx context.Context, page *resolver.Page) (resolver.Snapshot, error) {
	snapshot, err := page.Wait(ctx)
	if err != nil {
		page.Close()
		return snapshot, err
	}
	return snapshot, nil
}

type CampaignInsightsQuery struct {
	reader InsightsReader
}

func NewCampaignInsightsQuery(reader InsightsReader) *CampaignInsightsQuery {
	return &CampaignInsightsQuery{reader: reader}
}

func (q *CampaignInsightsQuery) Query(ctx context.Context, msg CampaignInsightsMessage) ([]facebook.CampaignInsights, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: insights reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.CampaignInsights(ctx, facebook.InsightsRequest{
		AccountID:   msg.AccountID,
		DatePreset:  msg.DatePreset,
		AccessToken: msg.AccessToken,
	})
}
