package facebook

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/ratelimit"
)

const (
	DefaultDatePreset = "last_30d"

	insightsCacheKeyPrefix = "resultlink::graph_insights::v1"
	campaignFields         = "id,name,status,objective"
	insightFields          = "impressions,clicks,reach,spend,ctr,cpc,date_start,date_stop"
	campaignPageSize       = "100"
)

var datePresets = map[string]struct{}{
	"today": {}, "yesterday": {}, "this_month": {}, "last_month": {}, "this_quarter": {},
	"maximum": {}, "data_maximum": {}, "last_3d": {}, "last_7d": {}, "last_14d": {},
	"last_28d": {}, "last_30d": {}, "last_90d": {}, "last_week_mon_sun": {},
	"last_week_sun_sat": {}, "last_quarter": {}, "last_year": {}, "this_week_mon_today": {},
	"this_week_sun_today": {}, "this_year": {},
}

type Campaign struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Objective string `json:"objective,omitempty"`
}

type Metrics struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Reach       int64   `json:"reach"`
	Spend       float64 `json:"spend"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	DateStart   string  `json:"date_start,omitempty"`
	DateStop    string  `json:"date_stop,omitempty"`
}

// CampaignInsights joins a campaign with its insights row. Metrics is nil
// when Graph has no delivery data for the period.
type CampaignInsights struct {
	Campaign Campaign `json:"campaign"`
	Metrics  *Metrics `json:"metrics"`
}

type InsightsRequest struct {
	AccountID   string
	DatePreset  string
	AccessToken string
}

func (r InsightsRequest) normalize() (InsightsRequest, error) {
	account := strings.TrimPrefix(strings.TrimSpace(r.AccountID), "act_")
	if account == "" {
		return InsightsRequest{}, invalidRequest("account_id", "is required")
	}
	if _, err := strconv.ParseUint(account, 10, 64); err != nil {
		return InsightsRequest{}, invalidRequest("account_id", "must be numeric")
	}
	preset := strings.ToLower(strings.TrimSpace(r.DatePreset))
	if preset == "" {
		preset = DefaultDatePreset
	}
	if _, ok := datePresets[preset]; !ok {
		return InsightsRequest{}, invalidRequest("date_preset", "is not a supported preset")
	}
	token := strings.TrimSpace(r.AccessToken)
	if token == "" {
		return InsightsRequest{}, core.NewError("facebook: access token is required", goerrors.CategoryAuth, core.ErrorUnauthorized)
	}
	return InsightsRequest{AccountID: account, DatePreset: preset, AccessToken: token}, nil
}

func invalidRequest(field string, message string) error {
	err := core.NewError("facebook: invalid insights request", goerrors.CategoryValidation, core.ErrorBadInput)
	err.ValidationErrors = goerrors.ValidationErrors{{Field: field, Message: message}}
	return err
}

// InsightsFetcher lists an ad account's campaigns and joins each with its
// insights for a date preset.
type InsightsFetcher struct {
	transport core.TransportAdapter
	config    core.GraphConfig
	cache     repositorycache.CacheService
	limiter   *ratelimit.AdaptivePolicy
	observer  *core.Observer
}

type Option func(*InsightsFetcher)

func WithCache(cache repositorycache.CacheService) Option {
	return func(f *InsightsFetcher) {
		f.cache = cache
	}
}

// WithRateLimitPolicy tracks Graph throttling per ad account.
func WithRateLimitPolicy(policy *ratelimit.AdaptivePolicy) Option {
	return func(f *InsightsFetcher) {
		f.limiter = policy
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(f *InsightsFetcher) {
		if observer != nil {
			f.observer = observer
		}
	}
}

func NewInsightsFetcher(transport core.TransportAdapter, config core.GraphConfig, opts ...Option) (*InsightsFetcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("facebook: transport is required")
	}
	defaults := core.DefaultConfig().Graph
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(config.Version) == "" {
		config.Version = defaults.Version
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if base, err := url.Parse(config.BaseURL); err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("facebook: graph base url is invalid: %q", config.BaseURL)
	}
	fetcher := &InsightsFetcher{
		transport: transport,
		config:    config,
		observer:  core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(fetcher)
	}
	return fetcher, nil
}

// NewInsightsCache builds the read-through cache used for insights lookups.
func NewInsightsCache(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// InsightsCacheKey is resultlink::graph_insights::v1::<account>::<preset>::<token fingerprint>.
func InsightsCacheKey(req InsightsRequest) string {
	return strings.Join([]string{
		insightsCacheKeyPrefix,
		url.PathEscape(req.AccountID),
		url.PathEscape(req.DatePreset),
		core.Fingerprint(req.AccessToken),
	}, "::")
}

func (f *InsightsFetcher) CampaignInsights(ctx context.Context, req InsightsRequest) ([]CampaignInsights, error) {
	if f == nil {
		return nil, fmt.Errorf("facebook: insights fetcher is not configured")
	}
	startedAt := time.Now()
	normalized, err := req.normalize()
	if err != nil {
		return nil, err
	}

	var out []CampaignInsights
	if f.cache != nil {
		out, err = repositorycache.GetOrFetch(ctx, f.cache, InsightsCacheKey(normalized), func(ctx context.Context) ([]CampaignInsights, error) {
			return f.fetch(ctx, normalized)
		})
	} else {
		out, err = f.fetch(ctx, normalized)
	}

	f.observer.ObserveOperation(ctx, startedAt, "graph_campaign_insights", err, map[string]any{
		"account_id":  normalized.AccountID,
		"date_preset": normalized.DatePreset,
		"campaigns":   len(out),
	})
	if err != nil {
		return nil, err
	}
	return cloneInsights(out), nil
}

// Invalidate drops the cached insights for req.
func (f *InsightsFetcher) Invalidate(ctx context.Context, req InsightsRequest) error {
	if f == nil || f.cache == nil {
		return nil
	}
	normalized, err := req.normalize()
	if err != nil {
		return err
	}
	return f.cache.Delete(ctx, InsightsCacheKey(normalized))
}

func (f *InsightsFetcher) fetch(ctx context.Context, req InsightsRequest) ([]CampaignInsights, error) {
	campaigns, err := f.listCampaigns(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]CampaignInsights, len(campaigns))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.config.MaxConcurrency)
	for i, campaign := range campaigns {
		group.Go(func() error {
			metrics, err := f.campaignMetrics(groupCtx, req, campaign.ID)
			if err != nil {
				return err
			}
			out[i] = CampaignInsights{Campaign: campaign, Metrics: metrics}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *InsightsFetcher) listCampaigns(ctx context.Context, req InsightsRequest) ([]Campaign, error) {
	next := f.graphURL("act_" + req.AccountID + "/campaigns")
	query := map[string]string{"fields": campaignFields, "limit": campaignPageSize}

	var campaigns []Campaign
	for pages := 0; next != "" && pages < f.config.MaxPages; pages++ {
		page, err := getPage[Campaign](ctx, f, req, next, query)
		if err != nil {
			return nil, err
		}
		for _, campaign := range page.Data {
			if strings.TrimSpace(campaign.ID) != "" {
				campaigns = append(campaigns, campaign)
			}
		}
		next = strings.TrimSpace(page.Paging.Next)
		if next != "" && !sameOrigin(f.config.BaseURL, next) {
			return nil, core.NewError("facebook: paging cursor left the graph host", goerrors.CategoryExternal, core.ErrorUpstreamFailure)
		}
		// the next link already carries every query parameter
		query = nil
	}
	return campaigns, nil
}

type insightRow struct {
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Reach       string `json:"reach"`
	Spend       string `json:"spend"`
	CTR         string `json:"ctr"`
	CPC         string `json:"cpc"`
	DateStart   string `json:"date_start"`
	DateStop    string `json:"date_stop"`
}

func (f *InsightsFetcher) campaignMetrics(ctx context.Context, req InsightsRequest, campaignID string) (*Metrics, error) {
	page, err := getPage[insightRow](ctx, f, req, f.graphURL(url.PathEscape(campaignID)+"/insights"), map[string]string{
		"fields":      insightFields,
		"date_preset": req.DatePreset,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	row := page.Data[0]
	return &Metrics{
		Impressions: parseInt(row.Impressions),
		Clicks:      parseInt(row.Clicks),
		Reach:       parseInt(row.Reach),
		Spend:       parseFloat(row.Spend),
		CTR:         parseFloat(row.CTR),
		CPC:         parseFloat(row.CPC),
		DateStart:   row.DateStart,
		DateStop:    row.DateStop,
	}, nil
}

func (f *InsightsFetcher) graphURL(path string) string {
	return strings.TrimRight(f.config.BaseURL, "/") + "/" + strings.Trim(f.config.Version, "/") + "/" + path
}

func parseInt(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func cloneInsights(in []CampaignInsights) []CampaignInsights {
	out := make([]CampaignInsights, len(in))
	for i, item := range in {
		out[i] = CampaignInsights{Campaign: item.Campaign}
		if item.Metrics != nil {
			metrics := *item.Metrics
			out[i].Metrics = &metrics
		}
	}
	return out
}
