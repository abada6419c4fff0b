package backend

import (
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

type ErrorKind string

const (
	ErrorKindTransport      ErrorKind = "transport"
	ErrorKindUpstreamStatus ErrorKind = "upstream_status"
	ErrorKindInvalidPayload ErrorKind = "invalid_payload"
	ErrorKindNotFound       ErrorKind = "not_found"
)

// Result is the outcome of one proxied backend call: either Ok with the
// backend's JSON payload or Err with a kind and an internal message.
type Result struct {
	ok         bool
	Payload    json.RawMessage
	StatusCode int
	Kind       ErrorKind
	Message    string
}

func Ok(payload json.RawMessage, statusCode int) Result {
	return Result{ok: true, Payload: append(json.RawMessage(nil), payload...), StatusCode: statusCode}
}

func Err(kind ErrorKind, message string, statusCode int) Result {
	return Result{Kind: kind, Message: message, StatusCode: statusCode}
}

func (r Result) IsOk() bool {
	return r.ok
}

// Envelope converts an Err result into an envelope. Ok results return nil.
func (r Result) Envelope() *goerrors.Error {
	if r.ok {
		return nil
	}
	var err *goerrors.Error
	switch r.Kind {
	case ErrorKindNotFound:
		err = core.NewError(r.Message, goerrors.CategoryNotFound, core.ErrorNotFound)
	default:
		err = core.NewError(r.Message, goerrors.CategoryExternal, core.ErrorUpstreamFailure)
	}
	return err.WithMetadata(map[string]any{
		"error_kind":      string(r.Kind),
		"upstream_status": r.StatusCode,
	})
}
