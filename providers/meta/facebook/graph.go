package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/ratelimit"
)

// Graph error codes that signal throttling.
// https://developers.facebook.com/docs/graph-api/overview/rate-limiting
var rateLimitCodes = map[int]struct{}{
	4:     {},
	17:    {},
	32:    {},
	613:   {},
	80000: {},
	80004: {},
}

const (
	rateLimitBucket           = "graph"
	graphCodeInvalidParameter = 100
	graphCodeInvalidToken     = 190
)

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

type graphErrorEnvelope struct {
	Error *graphError `json:"error"`
}

type graphPaging struct {
	Next string `json:"next"`
}

type graphPage[T any] struct {
	Data   []T         `json:"data"`
	Paging graphPaging `json:"paging"`
}

// getPage performs one Graph call and decodes a page of T. The access token is
// sent as a bearer header so it never lands in a URL. Calls for an account that
// Graph is throttling fail fast until the throttle window passes.
func getPage[T any](ctx context.Context, f *InsightsFetcher, req InsightsRequest, rawURL string, query map[string]string) (graphPage[T], error) {
	key := ratelimit.Key{Bucket: rateLimitBucket, Scope: req.AccountID}
	if err := f.limiter.BeforeCall(ctx, key); err != nil {
		var throttled ratelimit.ThrottledError
		if errors.As(err, &throttled) {
			return graphPage[T]{}, throttled.ToServiceError()
		}
		return graphPage[T]{}, err
	}
	res, err := f.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     rawURL,
		Query:   query,
		Headers: map[string]string{"Authorization": "Bearer " + req.AccessToken},
	})
	if err != nil {
		return graphPage[T]{}, err
	}
	if err := f.limiter.AfterCall(ctx, key, ratelimit.Response{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Throttled:  isThrottleResponse(res),
	}); err != nil {
		f.observer.LogWarn(ctx, "graph rate limit state update failed", map[string]any{"error": err.Error()})
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return graphPage[T]{}, mapGraphError(res)
	}
	var page graphPage[T]
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return graphPage[T]{}, core.WrapError(err, goerrors.CategoryExternal, "facebook: decode graph response", core.ErrorUpstreamFailure)
	}
	return page, nil
}

func decodeGraphError(res core.TransportResponse) *graphError {
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return nil
	}
	return envelope.Error
}

func isThrottleResponse(res core.TransportResponse) bool {
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return false
	}
	ge := decodeGraphError(res)
	if ge == nil {
		return false
	}
	_, ok := rateLimitCodes[ge.Code]
	return ok
}

func mapGraphError(res core.TransportResponse) error {
	ge := decodeGraphError(res)
	if ge == nil {
		return core.NewError(
			fmt.Sprintf("facebook: graph request failed with status %d", res.StatusCode),
			goerrors.CategoryExternal,
			core.ErrorUpstreamFailure,
		).WithMetadata(map[string]any{"upstream_status": res.StatusCode})
	}
	metadata := map[string]any{
		"upstream_status": res.StatusCode,
		"graph_code":      ge.Code,
		"graph_subcode":   ge.ErrorSubcode,
		"graph_type":      ge.Type,
		"fbtrace_id":      ge.FBTraceID,
	}
	message := "facebook: " + strings.TrimSpace(ge.Message)

	if _, ok := rateLimitCodes[ge.Code]; ok {
		return core.NewError(message, goerrors.CategoryRateLimit, core.ErrorRateLimited).WithMetadata(metadata)
	}
	switch ge.Code {
	case graphCodeInvalidToken:
		return core.NewError(message, goerrors.CategoryAuth, core.ErrorUnauthorized).WithMetadata(metadata)
	case graphCodeInvalidParameter:
		return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput).WithMetadata(metadata)
	default:
		return core.NewError(message, goerrors.CategoryExternal, core.ErrorUpstreamFailure).WithMetadata(metadata)
	}
}

// sameOrigin keeps paging on the configured Graph host.
func sameOrigin(base string, next string) bool {
	baseURL, err := url.Parse(base)
	if err != nil {
		return false
	}
	nextURL, err := url.Parse(next)
	if err != nil {
		return false
	}
	return strings.EqualFold(baseURL.Scheme, nextURL.Scheme) && strings.EqualFold(baseURL.Host, nextURL.Host)
}
