package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/ratelimit"
	"github.com/goliatone/go-resultlink/transport"
)

type graphServer struct {
	server   *httptest.Server
	requests atomic.Int64
}

func newGraphServer(t *testing.T, handler func(s *graphServer, w http.ResponseWriter, r *http.Request)) *graphServer {
	t.Helper()
	gs := &graphServer{}
	gs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gs.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer token_1" {
			t.Errorf("expected bearer token header, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("access_token") != "" {
			t.Errorf("access token must not be sent in the query")
		}
		w.Header().Set("Content-Type", "application/json")
		handler(gs, w, r)
	}))
	t.Cleanup(gs.server.Close)
	return gs
}

func newTestFetcher(t *testing.T, gs *graphServer, opts ...Option) *InsightsFetcher {
	t.Helper()
	fetcher, err := NewInsightsFetcher(transport.NewRESTAdapter(gs.server.Client()), core.GraphConfig{
		BaseURL: gs.server.URL,
		Version: "v23.0",
	}, opts...)
	if err != nil {
		t.Fatalf("new insights fetcher: %v", err)
	}
	return fetcher
}

func pagedCampaignHandler(s *graphServer, w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v23.0/act_123/campaigns" && r.URL.Query().Get("after") == "":
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","name":"Spring","status":"ACTIVE","objective":"OUTCOME_SALES"}],` +
			`"paging":{"next":"` + s.server.URL + `/v23.0/act_123/campaigns?after=cursor_1"}}`))
	case r.URL.Path == "/v23.0/act_123/campaigns":
		_, _ = w.Write([]byte(`{"data":[{"id":"c2","name":"Summer","status":"PAUSED"}],"paging":{}}`))
	case r.URL.Path == "/v23.0/c1/insights":
		if r.URL.Query().Get("date_preset") != "last_7d" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"impressions":"1200","clicks":"34","reach":"900","spend":"12.50",` +
			`"ctr":"2.83","cpc":"0.37","date_start":"2026-03-01","date_stop":"2026-03-07"}]}`))
	case r.URL.Path == "/v23.0/c2/insights":
		_, _ = w.Write([]byte(`{"data":[]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestInsightsFetcher_FollowsPagingAndJoinsMetrics(t *testing.T) {
	gs := newGraphServer(t, pagedCampaignHandler)
	fetcher := newTestFetcher(t, gs)

	out, err := fetcher.CampaignInsights(context.Background(), InsightsRequest{
		AccountID:   "act_123",
		DatePreset:  "last_7d",
		AccessToken: "token_1",
	})
	if err != nil {
		t.Fatalf("campaign insights: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(out))
	}
	if out[0].Campaign.ID != "c1" || out[1].Campaign.ID != "c2" {
		t.Fatalf("expected campaign order preserved, got %q %q", out[0].Campaign.ID, out[1].Campaign.ID)
	}
	metrics := out[0].Metrics
	if metrics == nil {
		t.Fatalf("expected metrics for c1")
	}
	if metrics.Impressions != 1200 || metrics.Clicks != 34 || metrics.Reach != 900 {
		t.Fatalf("unexpected counters %+v", metrics)
	}
	if metrics.Spend != 12.5 || metrics.CTR != 2.83 || metrics.CPC != 0.37 {
		t.Fatalf("unexpected rates %+v", metrics)
	}
	if out[1].Metrics != nil {
		t.Fatalf("expected nil metrics for campaign without delivery")
	}
}

func TestInsightsFetcher_CachesByAccountPresetAndToken(t *testing.T) {
	gs := newGraphServer(t, pagedCampaignHandler)
	cache, err := NewInsightsCache(time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	fetcher := newTestFetcher(t, gs, WithCache(cache))
	req := InsightsRequest{AccountID: "123", DatePreset: "last_7d", AccessToken: "token_1"}

	first, err := fetcher.CampaignInsights(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	calls := gs.requests.Load()
	if calls != 4 {
		t.Fatalf("expected 4 graph calls, got %d", calls)
	}

	first[0].Metrics.Clicks = 0
	second, err := fetcher.CampaignInsights(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if gs.requests.Load() != calls {
		t.Fatalf("expected cached read, graph calls went from %d to %d", calls, gs.requests.Load())
	}
	if second[0].Metrics.Clicks != 34 {
		t.Fatalf("expected cached value isolated from caller mutation, got %d", second[0].Metrics.Clicks)
	}

	if err := fetcher.Invalidate(context.Background(), req); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := fetcher.CampaignInsights(context.Background(), req); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if gs.requests.Load() != calls*2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", gs.requests.Load())
	}
}

func TestInsightsFetcher_MapsGraphErrors(t *testing.T) {
	cases := map[string]struct {
		status   int
		body     string
		category goerrors.Category
		textCode string
	}{
		"rate limited": {
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"User request limit reached","type":"OAuthException","code":17,"fbtrace_id":"trace_1"}}`,
			category: goerrors.CategoryRateLimit,
			textCode: core.ErrorRateLimited,
		},
		"invalid token": {
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`,
			category: goerrors.CategoryAuth,
			textCode: core.ErrorUnauthorized,
		},
		"invalid parameter": {
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"Invalid parameter","code":100}}`,
			category: goerrors.CategoryBadInput,
			textCode: core.ErrorBadInput,
		},
		"opaque failure": {
			status:   http.StatusInternalServerError,
			body:     `<html>oops</html>`,
			category: goerrors.CategoryExternal,
			textCode: core.ErrorUpstreamFailure,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gs := newGraphServer(t, func(_ *graphServer, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := newTestFetcher(t, gs).CampaignInsights(context.Background(), InsightsRequest{
				AccountID:   "123",
				AccessToken: "token_1",
			})
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected rich error, got %v", err)
			}
			if rich.Category != tc.category || rich.TextCode != tc.textCode {
				t.Fatalf("expected %s/%s, got %s/%s", tc.category, tc.textCode, rich.Category, rich.TextCode)
			}
			if rich.Metadata["upstream_status"] != tc.status {
				t.Fatalf("expected upstream status metadata %d, got %v", tc.status, rich.Metadata["upstream_status"])
			}
		})
	}
}

func TestInsightsFetcher_BacksOffThrottledAccount(t *testing.T) {
	gs := newGraphServer(t, func(_ *graphServer, w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v23.0/act_1/") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Application request limit reached","code":4}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"paging":{}}`))
	})
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	policy.Now = func() time.Time { return now }
	fetcher := newTestFetcher(t, gs, WithRateLimitPolicy(policy))

	req := InsightsRequest{AccountID: "1", AccessToken: "token_1"}
	for attempt := 0; attempt < 2; attempt++ {
		_, err := fetcher.CampaignInsights(context.Background(), req)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorRateLimited {
			t.Fatalf("attempt %d: expected rate limited error, got %v", attempt, err)
		}
	}
	if got := gs.requests.Load(); got != 1 {
		t.Fatalf("expected the second call to fail fast, got %d upstream requests", got)
	}

	if _, err := fetcher.CampaignInsights(context.Background(), InsightsRequest{AccountID: "2", AccessToken: "token_1"}); err != nil {
		t.Fatalf("expected other accounts unaffected, got %v", err)
	}
	if got := gs.requests.Load(); got != 2 {
		t.Fatalf("expected one more upstream request, got %d", got)
	}
}

func TestInsightsFetcher_RejectsForeignPagingCursor(t *testing.T) {
	gs := newGraphServer(t, func(_ *graphServer, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"c1"}],"paging":{"next":"https://evil.example/v23.0/act_123/campaigns?after=x"}}`))
	})
	_, err := newTestFetcher(t, gs).CampaignInsights(context.Background(), InsightsRequest{
		AccountID:   "123",
		AccessToken: "token_1",
	})
	if err == nil || !strings.Contains(err.Error(), "paging cursor") {
		t.Fatalf("expected paging cursor error, got %v", err)
	}
}

func TestInsightsRequest_Validation(t *testing.T) {
	cases := map[string]struct {
		req      InsightsRequest
		category goerrors.Category
	}{
		"missing account": {req: InsightsRequest{AccessToken: "t"}, category: goerrors.CategoryValidation},
		"non numeric":     {req: InsightsRequest{AccountID: "act_abc", AccessToken: "t"}, category: goerrors.CategoryValidation},
		"bad preset":      {req: InsightsRequest{AccountID: "1", DatePreset: "forever", AccessToken: "t"}, category: goerrors.CategoryValidation},
		"missing token":   {req: InsightsRequest{AccountID: "1"}, category: goerrors.CategoryAuth},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.req.normalize()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.Category != tc.category {
				t.Fatalf("expected %s error, got %v", tc.category, err)
			}
		})
	}

	normalized, err := InsightsRequest{AccountID: " act_42 ", AccessToken: "t"}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized.AccountID != "42" || normalized.DatePreset != DefaultDatePreset {
		t.Fatalf("unexpected normalized request %+v", normalized)
	}
}

func TestInsightsCacheKey_DoesNotContainToken(t *testing.T) {
	key := InsightsCacheKey(InsightsRequest{AccountID: "42", DatePreset: "last_7d", AccessToken: "secret-token"})
	if strings.Contains(key, "secret-token") {
		t.Fatalf("cache key leaks access token: %q", key)
	}
	if !strings.HasPrefix(key, "resultlink::graph_insights::v1::42::last_7d::") {
		t.Fatalf("unexpected cache key %q", key)
	}
}
