package core

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_ClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		err      error
		code     int
		textCode string
	}{
		{errors.New("ad record not found"), http.StatusNotFound, ErrorNotFound},
		{errors.New("graph rate limit reached"), http.StatusTooManyRequests, ErrorRateLimited},
		{errors.New("account_id is required"), http.StatusBadRequest, ErrorBadInput},
		{errors.New("boom"), http.StatusInternalServerError, ErrorInternal},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapping for %q", tc.err)
		}
		if mapped.Code != tc.code || mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected %d/%s, got %d/%s", tc.err, tc.code, tc.textCode, mapped.Code, mapped.TextCode)
		}
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestMapError_KeepsRichEnvelope(t *testing.T) {
	rich := goerrors.New("backend down", goerrors.CategoryExternal)
	mapped := MapError(rich)
	if mapped != rich {
		t.Fatalf("expected the same envelope back")
	}
	if mapped.Code != http.StatusBadGateway || mapped.TextCode != ErrorUpstreamFailure {
		t.Fatalf("expected filled external defaults, got %d/%s", mapped.Code, mapped.TextCode)
	}
}

func TestNotFoundAndUnavailableEnvelopes(t *testing.T) {
	notFound := NotFoundError()
	if notFound.Code != http.StatusNotFound || notFound.TextCode != ErrorNotFound {
		t.Fatalf("unexpected not found envelope %d/%s", notFound.Code, notFound.TextCode)
	}
	unavailable := UnavailableError()
	if unavailable.Code != http.StatusBadGateway || unavailable.TextCode != ErrorResourceUnavailable {
		t.Fatalf("unexpected unavailable envelope %d/%s", unavailable.Code, unavailable.TextCode)
	}
}

func TestPublicError_HidesInternalDetail(t *testing.T) {
	source := errors.New("dial tcp 10.0.0.7:5432: connection refused")
	wrapped := WrapError(source, goerrors.CategoryExternal, "backend request failed", "")
	wrapped.Metadata = map[string]any{"host": "10.0.0.7"}

	public := PublicError(wrapped)
	if public.Message != genericUpstreamErrorMessage {
		t.Fatalf("expected generic upstream message, got %q", public.Message)
	}
	if public.Code != http.StatusBadGateway || public.TextCode != ErrorUpstreamFailure {
		t.Fatalf("unexpected public envelope %d/%s", public.Code, public.TextCode)
	}
	if len(public.Metadata) != 0 || public.Source != nil {
		t.Fatalf("expected metadata and source stripped")
	}

	internal := PublicError(errors.New("panic: nil map write"))
	if internal.Message != genericInternalErrorMessage || strings.Contains(internal.Message, "nil map") {
		t.Fatalf("expected internal detail hidden, got %q", internal.Message)
	}

	unavailable := PublicError(UnavailableError())
	if unavailable.Message != genericUnavailableMessage {
		t.Fatalf("expected unavailable message kept, got %q", unavailable.Message)
	}

	badInput := PublicError(NewError("path is required", goerrors.CategoryBadInput, ErrorBadInput))
	if badInput.Message != "path is required" {
		t.Fatalf("expected bad input message kept, got %q", badInput.Message)
	}
	if PublicError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[goerrors.Category]int{
		goerrors.CategoryBadInput:  http.StatusBadRequest,
		goerrors.CategoryNotFound:  http.StatusNotFound,
		goerrors.CategoryAuth:      http.StatusUnauthorized,
		goerrors.CategoryAuthz:     http.StatusForbidden,
		goerrors.CategoryRateLimit: http.StatusTooManyRequests,
		goerrors.CategoryExternal:  http.StatusBadGateway,
		goerrors.CategoryInternal:  http.StatusInternalServerError,
	}
	for category, expected := range cases {
		if got := HTTPStatus(category); got != expected {
			t.Fatalf("%s: expected %d, got %d", category, expected, got)
		}
	}
}
