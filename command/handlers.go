package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-resultlink/backend"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/events"
	"github.com/goliatone/go-resultlink/navigation"
)

type PageViewEmitter interface {
	PageView(ctx context.Context, view events.PageView) (events.Event, error)
}

type BackendProxy interface {
	Forward(ctx context.Context, op backend.Operation, req backend.Request) backend.Result
}

type RouteNavigator interface {
	NavigateSingle(ctx context.Context, navigator navigation.Navigator, id core.Identifier) (string, error)
	NavigateComparison(ctx context.Context, navigator navigation.Navigator, a core.Identifier, b core.Identifier) (string, error)
}

type EmitPageViewCommand struct {
	emitter PageViewEmitter
}

func NewEmitPageViewCommand(emitter PageViewEmitter) *EmitPageViewCommand {
	return &EmitPageViewCommand{emitter: emitter}
}

func (c *EmitPageViewCommand) Execute(ctx context.Context, msg EmitPageViewMessage) error {
	if c == nil || c.emitter == nil {
		return commandDependencyError("command: page view emitter is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	event, err := c.emitter.PageView(ctx, msg.View)
	if err != nil {
		return err
	}
	storeResult(ctx, event)
	return nil
}

// ProxyCommand forwards one backend operation. The backend.Result is stored
// for Ok and Err outcomes alike; Err also returns its envelope.
type ProxyCommand[T ProxyMessage] struct {
	proxy BackendProxy
	op    backend.Operation
}

type ProxyMessage interface {
	ProxyAnalyzeMessage | ProxyUploadMessage | ProxyPaymentMessage
	Validate() error
}

func NewProxyAnalyzeCommand(proxy BackendProxy) *ProxyCommand[ProxyAnalyzeMessage] {
	return &ProxyCommand[ProxyAnalyzeMessage]{proxy: proxy, op: backend.OperationAnalyze}
}

func NewProxyUploadCommand(proxy BackendProxy) *ProxyCommand[ProxyUploadMessage] {
	return &ProxyCommand[ProxyUploadMessage]{proxy: proxy, op: backend.OperationUpload}
}

func NewProxyPaymentCommand(proxy BackendProxy) *ProxyCommand[ProxyPaymentMessage] {
	return &ProxyCommand[ProxyPaymentMessage]{proxy: proxy, op: backend.OperationPayment}
}

func (c *ProxyCommand[T]) Execute(ctx context.Context, msg T) error {
	if c == nil || c.proxy == nil {
		return commandDependencyError("command: backend proxy is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	result := c.proxy.Forward(ctx, c.op, proxyRequest(msg))
	storeResult(ctx, result)
	if !result.IsOk() {
		return result.Envelope()
	}
	return nil
}

func proxyRequest[T ProxyMessage](msg T) backend.Request {
	switch typed := any(msg).(type) {
	case ProxyAnalyzeMessage:
		return typed.Request
	case ProxyUploadMessage:
		return typed.Request
	case ProxyPaymentMessage:
		return typed.Request
	default:
		return backend.Request{}
	}
}

type NavigateSingleCommand struct {
	navigator RouteNavigator
}

func NewNavigateSingleCommand(navigator RouteNavigator) *NavigateSingleCommand {
	return &NavigateSingleCommand{navigator: navigator}
}

func (c *NavigateSingleCommand) Execute(ctx context.Context, msg NavigateSingleMessage) error {
	if c == nil || c.navigator == nil {
		return commandDependencyError("command: route navigator is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	path, err := c.navigator.NavigateSingle(ctx, msg.Navigator, msg.Identifier)
	if err != nil {
		return err
	}
	storeResult(ctx, path)
	return nil
}

type NavigateComparisonCommand struct {
	navigator RouteNavigator
}

func NewNavigateComparisonCommand(navigator RouteNavigator) *NavigateComparisonCommand {
	return &NavigateComparisonCommand{navigator: navigator}
}

func (c *NavigateComparisonCommand) Execute(ctx context.Context, msg NavigateComparisonMessage) error {
	if c == nil || c.navigator == nil {
		return commandDependencyError("command: route navigator is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	path, err := c.navigator.NavigateComparison(ctx, msg.Navigator, msg.A, msg.B)
	if err != nil {
		return err
	}
	storeResult(ctx, path)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
