package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

type Operation string

const (
	OperationAnalyze Operation = "analyze"
	OperationUpload  Operation = "upload"
	OperationPayment Operation = "payment"
)

// Request is the caller's body forwarded verbatim to the backend.
type Request struct {
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// Client proxies analyze, upload and payment calls to the fixed backend and
// loads result resources by identifier.
type Client struct {
	transport core.TransportAdapter
	config    core.BackendConfig
	observer  *core.Observer
	clock     core.Clock
}

type Option func(*Client)

func WithObserver(observer *core.Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewClient(transport core.TransportAdapter, config core.BackendConfig, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("backend: transport is required")
	}
	base, err := url.Parse(strings.TrimSpace(config.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base url is invalid: %q", config.BaseURL)
	}
	defaults := core.DefaultConfig().Backend
	if strings.TrimSpace(config.AnalyzePath) == "" {
		config.AnalyzePath = defaults.AnalyzePath
	}
	if strings.TrimSpace(config.UploadPath) == "" {
		config.UploadPath = defaults.UploadPath
	}
	if strings.TrimSpace(config.PaymentPath) == "" {
		config.PaymentPath = defaults.PaymentPath
	}
	if strings.TrimSpace(config.ResourcePath) == "" {
		config.ResourcePath = defaults.ResourcePath
	}
	if !strings.Contains(config.ResourcePath, core.ResourcePathIdentifierToken) {
		return nil, fmt.Errorf("backend: resource path must contain %s", core.ResourcePathIdentifierToken)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	client := &Client{
		transport: transport,
		config:    config,
		observer:  core.NewObserver(nil, nil),
		clock:     core.SystemClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client, nil
}

func (c *Client) Analyze(ctx context.Context, req Request) Result {
	return c.Forward(ctx, OperationAnalyze, req)
}

func (c *Client) Upload(ctx context.Context, req Request) Result {
	return c.Forward(ctx, OperationUpload, req)
}

func (c *Client) Payment(ctx context.Context, req Request) Result {
	return c.Forward(ctx, OperationPayment, req)
}

// Forward posts req to the backend path for op. Only a 2xx JSON response is
// Ok; everything else is an Err result.
func (c *Client) Forward(ctx context.Context, op Operation, req Request) Result {
	startedAt := time.Now()
	path, err := c.pathFor(op)
	if err != nil {
		return Err(ErrorKindTransport, err.Error(), 0)
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for key, value := range req.Headers {
		headers[key] = value
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "application/json"
	}
	headers["Content-Type"] = contentType

	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method:               http.MethodPost,
		URL:                  c.endpoint(path),
		Headers:              headers,
		Body:                 req.Body,
		Timeout:              c.config.Timeout,
		MaxResponseBodyBytes: c.config.MaxResponseBodyBytes,
	})
	result := interpret(res, err)
	c.observe(ctx, startedAt, "backend_"+string(op), result)
	return result
}

// FetchResource loads the record behind id from the resource path template.
func (c *Client) FetchResource(ctx context.Context, id core.Identifier) (core.Resource, error) {
	if err := id.Validate(); err != nil {
		return core.Resource{}, core.WrapError(err, goerrors.CategoryBadInput, "backend: invalid identifier", core.ErrorBadInput)
	}
	startedAt := time.Now()
	path := strings.ReplaceAll(c.config.ResourcePath, core.ResourcePathIdentifierToken, url.PathEscape(id.String()))
	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method:               http.MethodGet,
		URL:                  c.endpoint(path),
		Timeout:              c.config.Timeout,
		MaxResponseBodyBytes: c.config.MaxResponseBodyBytes,
	})
	result := interpret(res, err)
	c.observe(ctx, startedAt, "backend_fetch_resource", result)
	if !result.IsOk() {
		return core.Resource{}, result.Envelope()
	}
	return core.Resource{
		Identifier: id,
		Payload:    result.Payload,
		FetchedAt:  c.clock.Now(),
		Metadata:   core.CopyAnyMap(res.Metadata),
	}, nil
}

func interpret(res core.TransportResponse, err error) Result {
	if err != nil {
		return Err(ErrorKindTransport, err.Error(), 0)
	}
	if res.StatusCode == http.StatusNotFound {
		return Err(ErrorKindNotFound, "backend: resource not found", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Err(ErrorKindUpstreamStatus, fmt.Sprintf("backend: unexpected status %d", res.StatusCode), res.StatusCode)
	}
	body := res.Body
	if len(strings.TrimSpace(string(body))) == 0 || !json.Valid(body) {
		return Err(ErrorKindInvalidPayload, "backend: response is not valid json", res.StatusCode)
	}
	return Ok(body, res.StatusCode)
}

func (c *Client) pathFor(op Operation) (string, error) {
	switch op {
	case OperationAnalyze:
		return c.config.AnalyzePath, nil
	case OperationUpload:
		return c.config.UploadPath, nil
	case OperationPayment:
		return c.config.PaymentPath, nil
	default:
		return "", fmt.Errorf("backend: unknown operation %q", op)
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) observe(ctx context.Context, startedAt time.Time, operation string, result Result) {
	var failure error
	fields := map[string]any{"upstream_status": result.StatusCode}
	if !result.IsOk() {
		failure = result.Envelope()
		fields["error_kind"] = string(result.Kind)
	}
	c.observer.ObserveOperation(ctx, startedAt, operation, failure, fields)
}

var _ core.ResourceFetcher = (*Client)(nil)
