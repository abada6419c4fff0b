package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-resultlink/backend"
	"github.com/goliatone/go-resultlink/events"
	"github.com/goliatone/go-resultlink/navigation"
)

var (
	_ gocmd.Commander[EmitPageViewMessage]       = (*EmitPageViewCommand)(nil)
	_ gocmd.Commander[ProxyAnalyzeMessage]       = (*ProxyCommand[ProxyAnalyzeMessage])(nil)
	_ gocmd.Commander[ProxyUploadMessage]        = (*ProxyCommand[ProxyUploadMessage])(nil)
	_ gocmd.Commander[ProxyPaymentMessage]       = (*ProxyCommand[ProxyPaymentMessage])(nil)
	_ gocmd.Commander[NavigateSingleMessage]     = (*NavigateSingleCommand)(nil)
	_ gocmd.Commander[NavigateComparisonMessage] = (*NavigateComparisonCommand)(nil)

	_ PageViewEmitter = (*events.Emitter)(nil)
	_ BackendProxy    = (*backend.Client)(nil)
	_ RouteNavigator  = (*navigation.Helper)(nil)
)
