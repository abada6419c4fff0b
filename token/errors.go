package token

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

type FailureKind string

const (
	FailureMalformed         FailureKind = "malformed"
	FailureIntegrityMismatch FailureKind = "integrity_mismatch"
	FailureExpired           FailureKind = "expired"
)

// DecodeError reports why a token could not be turned back into an
// identifier. Reason is for logs only and never reaches a client.
type DecodeError struct {
	Kind   FailureKind
	Reason string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return fmt.Sprintf("token: %s", e.Kind)
	}
	return fmt.Sprintf("token: %s: %s", e.Kind, e.Reason)
}

// Envelope converts the failure into a go-errors envelope carrying the
// failure-specific text code. Callers that face the user should still answer
// with core.NotFoundError.
func (e *DecodeError) Envelope() *goerrors.Error {
	if e == nil {
		return nil
	}
	textCode := core.ErrorTokenMalformed
	switch e.Kind {
	case FailureIntegrityMismatch:
		textCode = core.ErrorTokenIntegrityMismatch
	case FailureExpired:
		textCode = core.ErrorTokenExpired
	}
	return core.NewError(e.Error(), goerrors.CategoryBadInput, textCode).
		WithMetadata(map[string]any{"failure_kind": string(e.Kind)})
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (FailureKind, bool) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return decodeErr.Kind, true
	}
	return "", false
}

func malformed(reason string) error {
	return &DecodeError{Kind: FailureMalformed, Reason: reason}
}

func mismatch(reason string) error {
	return &DecodeError{Kind: FailureIntegrityMismatch, Reason: reason}
}
