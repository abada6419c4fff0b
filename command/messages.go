package command

import (
	"strings"

	"github.com/goliatone/go-resultlink/backend"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/events"
	"github.com/goliatone/go-resultlink/navigation"
)

const (
	TypeEmitPageView       = "resultlink.command.page_view.emit"
	TypeProxyAnalyze       = "resultlink.command.backend.analyze"
	TypeProxyUpload        = "resultlink.command.backend.upload"
	TypeProxyPayment       = "resultlink.command.backend.payment"
	TypeNavigateSingle     = "resultlink.command.navigate.single"
	TypeNavigateComparison = "resultlink.command.navigate.comparison"
)

type EmitPageViewMessage struct {
	View events.PageView
}

func (EmitPageViewMessage) Type() string { return TypeEmitPageView }

func (m EmitPageViewMessage) Validate() error {
	if strings.TrimSpace(m.View.Path) == "" {
		return commandValidationError("path", "is required")
	}
	return nil
}

type ProxyAnalyzeMessage struct {
	Request backend.Request
}

func (ProxyAnalyzeMessage) Type() string { return TypeProxyAnalyze }

func (ProxyAnalyzeMessage) Validate() error { return nil }

type ProxyUploadMessage struct {
	Request backend.Request
}

func (ProxyUploadMessage) Type() string { return TypeProxyUpload }

func (m ProxyUploadMessage) Validate() error {
	if len(m.Request.Body) == 0 {
		return commandValidationError("body", "is required")
	}
	return nil
}

type ProxyPaymentMessage struct {
	Request backend.Request
}

func (ProxyPaymentMessage) Type() string { return TypeProxyPayment }

func (ProxyPaymentMessage) Validate() error { return nil }

type NavigateSingleMessage struct {
	Identifier core.Identifier
	Navigator  navigation.Navigator
}

func (NavigateSingleMessage) Type() string { return TypeNavigateSingle }

func (m NavigateSingleMessage) Validate() error {
	if m.Identifier.IsZero() {
		return commandValidationError("identifier", "is required")
	}
	if m.Navigator == nil {
		return commandValidationError("navigator", "is required")
	}
	return nil
}

type NavigateComparisonMessage struct {
	A         core.Identifier
	B         core.Identifier
	Navigator navigation.Navigator
}

func (NavigateComparisonMessage) Type() string { return TypeNavigateComparison }

func (m NavigateComparisonMessage) Validate() error {
	if m.A.IsZero() {
		return commandValidationError("a", "is required")
	}
	if m.B.IsZero() {
		return commandValidationError("b", "is required")
	}
	if m.Navigator == nil {
		return commandValidationError("navigator", "is required")
	}
	return nil
}
