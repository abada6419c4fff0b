package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	resultlink "github.com/goliatone/go-resultlink"
	"github.com/goliatone/go-resultlink/core"
)

const (
	defaultMaxBodyBytes = int64(core.DefaultBackendBodyLimit)

	RequestIDHeader = "X-Request-ID"
	SessionIDHeader = "X-Session-ID"
)

// HealthCheck reports whether a dependency is usable. A non-nil error turns
// /healthz into a 503.
type HealthCheck func(ctx context.Context) error

// Handler serves the result pages, the backend pass-through endpoints and the
// insights and page view APIs on one ServeMux.
type Handler struct {
	facade       *resultlink.Facade
	routes       core.RoutesConfig
	logger       core.Logger
	maxBodyBytes int64
	health       []HealthCheck
	newRequestID func() string
	mux          *http.ServeMux
}

type Option func(*Handler)

func WithRoutes(routes core.RoutesConfig) Option {
	return func(h *Handler) {
		h.routes = routes
	}
}

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		h.logger = glog.Ensure(logger)
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

func WithHealthCheck(check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.health = append(h.health, check)
		}
	}
}

func WithRequestIDGenerator(newID func() string) Option {
	return func(h *Handler) {
		if newID != nil {
			h.newRequestID = newID
		}
	}
}

func New(facade *resultlink.Facade, opts ...Option) (*Handler, error) {
	if facade == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	h := &Handler{
		facade:       facade,
		routes:       core.DefaultConfig().Routes,
		logger:       glog.Nop(),
		maxBodyBytes: defaultMaxBodyBytes,
		newRequestID: defaultRequestID,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if !strings.HasPrefix(h.routes.SingleResultPath, "/") || !strings.HasPrefix(h.routes.ComparisonResultPath, "/") {
		return nil, fmt.Errorf("httpapi: result paths must be absolute")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+h.routes.SingleResultPath, h.handleSingleResult)
	mux.HandleFunc("GET "+h.routes.ComparisonResultPath, h.handleComparisonResult)
	mux.HandleFunc("POST /navigate"+h.routes.SingleResultPath, h.handleNavigateSingle)
	mux.HandleFunc("POST /navigate"+h.routes.ComparisonResultPath, h.handleNavigateComparison)
	mux.HandleFunc("POST /api/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/upload", h.handleUpload)
	mux.HandleFunc("POST /api/payment", h.handlePayment)
	mux.HandleFunc("GET /api/insights", h.handleInsights)
	mux.HandleFunc("POST /api/events/page-view", h.handlePageView)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux = mux
	return h, nil
}

// ServeHTTP stamps a request id, recovers panics into a generic 500 envelope
// and dispatches to the mux.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if requestID == "" {
		requestID = h.newRequestID()
	}
	w.Header().Set(RequestIDHeader, requestID)
	r = r.WithContext(withRequestID(r.Context(), requestID))

	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Error("http handler panic",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID,
				"panic", fmt.Sprint(recovered),
			)
			h.writeError(w, r, core.NewError("panic recovered", goerrors.CategoryInternal, core.ErrorInternal))
		}
	}()
	h.mux.ServeHTTP(w, r)
}
