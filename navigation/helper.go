package navigation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-resultlink/core"
)

// Encoder issues the opaque token placed in outbound routes.
type Encoder interface {
	Encode(id core.Identifier) (string, error)
}

// Navigator performs the route transition once a path has been built.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

type NavigatorFunc func(ctx context.Context, path string) error

func (f NavigatorFunc) Navigate(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Helper builds result routes. Identifiers only ever appear in the returned
// path as tokens.
type Helper struct {
	encoder Encoder
	routes  core.RoutesConfig
}

func NewHelper(encoder Encoder, routes core.RoutesConfig) (*Helper, error) {
	if encoder == nil {
		return nil, fmt.Errorf("navigation: encoder is required")
	}
	defaults := core.DefaultConfig().Routes
	if strings.TrimSpace(routes.SingleResultPath) == "" {
		routes.SingleResultPath = defaults.SingleResultPath
	}
	if strings.TrimSpace(routes.ComparisonResultPath) == "" {
		routes.ComparisonResultPath = defaults.ComparisonResultPath
	}
	if strings.TrimSpace(routes.TokenParam) == "" {
		routes.TokenParam = defaults.TokenParam
	}
	if strings.TrimSpace(routes.TokenParamA) == "" {
		routes.TokenParamA = defaults.TokenParamA
	}
	if strings.TrimSpace(routes.TokenParamB) == "" {
		routes.TokenParamB = defaults.TokenParamB
	}
	return &Helper{encoder: encoder, routes: routes}, nil
}

func (h *Helper) Routes() core.RoutesConfig {
	if h == nil {
		return core.DefaultConfig().Routes
	}
	return h.routes
}

// BuildSingleResultRoute returns /results?ad-token=<token>.
func (h *Helper) BuildSingleResultRoute(id core.Identifier) (string, error) {
	if h == nil {
		return "", fmt.Errorf("navigation: helper is not configured")
	}
	tok, err := h.encoder.Encode(id)
	if err != nil {
		return "", fmt.Errorf("navigation: encode identifier: %w", err)
	}
	return h.routes.SingleResultPath + "?" + queryPair(h.routes.TokenParam, tok), nil
}

// BuildComparisonResultRoute encodes both sides independently and returns
// /ab-results?ad-token-a=<tokenA>&ad-token-b=<tokenB>.
func (h *Helper) BuildComparisonResultRoute(a core.Identifier, b core.Identifier) (string, error) {
	if h == nil {
		return "", fmt.Errorf("navigation: helper is not configured")
	}
	tokenA, err := h.encoder.Encode(a)
	if err != nil {
		return "", fmt.Errorf("navigation: encode identifier a: %w", err)
	}
	tokenB, err := h.encoder.Encode(b)
	if err != nil {
		return "", fmt.Errorf("navigation: encode identifier b: %w", err)
	}
	return h.routes.ComparisonResultPath + "?" +
		queryPair(h.routes.TokenParamA, tokenA) + "&" +
		queryPair(h.routes.TokenParamB, tokenB), nil
}

func (h *Helper) NavigateSingle(ctx context.Context, navigator Navigator, id core.Identifier) (string, error) {
	path, err := h.BuildSingleResultRoute(id)
	if err != nil {
		return "", err
	}
	return path, navigate(ctx, navigator, path)
}

func (h *Helper) NavigateComparison(ctx context.Context, navigator Navigator, a core.Identifier, b core.Identifier) (string, error) {
	path, err := h.BuildComparisonResultRoute(a, b)
	if err != nil {
		return "", err
	}
	return path, navigate(ctx, navigator, path)
}

func navigate(ctx context.Context, navigator Navigator, path string) error {
	if navigator == nil {
		return nil
	}
	if err := navigator.Navigate(ctx, path); err != nil {
		return fmt.Errorf("navigation: navigate: %w", err)
	}
	return nil
}

func queryPair(key string, value string) string {
	return url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

// RedirectNavigator answers an HTTP request with a See Other redirect to the
// built path.
type RedirectNavigator struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

func (n RedirectNavigator) Navigate(_ context.Context, path string) error {
	if n.Writer == nil || n.Request == nil {
		return fmt.Errorf("navigation: redirect target is not configured")
	}
	http.Redirect(n.Writer, n.Request, path, http.StatusSeeOther)
	return nil
}
