package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput                = "RESULTLINK_BAD_INPUT"
	ErrorTokenMalformed          = "RESULTLINK_TOKEN_MALFORMED"
	ErrorTokenIntegrityMismatch  = "RESULTLINK_TOKEN_INTEGRITY_MISMATCH"
	ErrorTokenExpired            = "RESULTLINK_TOKEN_EXPIRED"
	ErrorTokenMissing            = "RESULTLINK_TOKEN_MISSING"
	ErrorNotFound                = "RESULTLINK_NOT_FOUND"
	ErrorResourceUnavailable     = "RESULTLINK_RESOURCE_UNAVAILABLE"
	ErrorUpstreamFailure         = "RESULTLINK_UPSTREAM_FAILURE"
	ErrorUnauthorized            = "RESULTLINK_UNAUTHORIZED"
	ErrorRateLimited             = "RESULTLINK_RATE_LIMITED"
	ErrorInternal                = "RESULTLINK_INTERNAL_ERROR"
	genericNotFoundMessage       = "The requested result could not be found"
	genericUnavailableMessage    = "The requested result could not be loaded"
	genericInternalErrorMessage  = "An unexpected error occurred"
	genericUpstreamErrorMessage  = "The upstream service request failed"
	genericBadInputErrorMessage  = "The request is invalid"
	genericRateLimitErrorMessage = "Too many requests"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// NewError builds an envelope with the HTTP code derived from the category.
func NewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func WrapError(source error, category goerrors.Category, message string, textCode string) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode)
	}
	return ensureErrorEnvelope(goerrors.Wrap(source, category, message).WithTextCode(textCode))
}

// NotFoundError is the only envelope handed to callers for token failures, so
// a tampered token is indistinguishable from an unknown one.
func NotFoundError() *goerrors.Error {
	return NewError(genericNotFoundMessage, goerrors.CategoryNotFound, ErrorNotFound)
}

func UnavailableError() *goerrors.Error {
	return NewError(genericUnavailableMessage, goerrors.CategoryExternal, ErrorResourceUnavailable)
}

func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return NewError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return NewError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return NewError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if mapped != nil && mapped.Category == goerrors.CategoryInternal {
		mapped.TextCode = ErrorInternal
	}
	return ensureErrorEnvelope(mapped)
}

// PublicError strips internal detail from an envelope before it is written to
// a client. Source errors and metadata stay in logs only.
func PublicError(err error) *goerrors.Error {
	mapped := MapError(err)
	if mapped == nil {
		return nil
	}
	message := mapped.Message
	switch mapped.Category {
	case goerrors.CategoryInternal:
		message = genericInternalErrorMessage
	case goerrors.CategoryExternal:
		if mapped.TextCode != ErrorResourceUnavailable {
			message = genericUpstreamErrorMessage
		}
	case goerrors.CategoryNotFound:
		message = genericNotFoundMessage
	case goerrors.CategoryRateLimit:
		message = genericRateLimitErrorMessage
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		if strings.TrimSpace(message) == "" {
			message = genericBadInputErrorMessage
		}
	}
	public := goerrors.New(message, mapped.Category).
		WithCode(mapped.Code).
		WithTextCode(mapped.TextCode)
	public.ValidationErrors = mapped.ValidationErrors
	public.RequestID = mapped.RequestID
	public.Location = nil
	return public
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = genericInternalErrorMessage
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorUpstreamFailure
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
