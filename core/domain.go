package core

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PageViewEventName = "page_view"

	DefaultSingleResultPath     = "/results"
	DefaultComparisonResultPath = "/ab-results"
	DefaultTokenParam           = "ad-token"
	DefaultTokenParamA          = "ad-token-a"
	DefaultTokenParamB          = "ad-token-b"
)

// Identifier is the backend-assigned reference to an ad or comparison record.
// It is carried verbatim; blank values and invalid UTF-8 are rejected.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

func (id Identifier) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

func (id Identifier) Validate() error {
	if id.IsZero() {
		return NewError("core: identifier is required", goerrors.CategoryBadInput, ErrorBadInput)
	}
	if !utf8.ValidString(string(id)) {
		return NewError("core: identifier must be valid UTF-8", goerrors.CategoryBadInput, ErrorBadInput)
	}
	return nil
}

type Resource struct {
	Identifier Identifier
	Payload    json.RawMessage
	FetchedAt  time.Time
	Metadata   map[string]any
}

func (r Resource) Clone() Resource {
	cloned := r
	if r.Payload != nil {
		cloned.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	cloned.Metadata = copyAnyMap(r.Metadata)
	return cloned
}

type PageViewRecord struct {
	ID         string
	Name       string
	Path       string
	Referrer   string
	SessionID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// CopyAnyMap returns a shallow copy that is never nil.
func CopyAnyMap(in map[string]any) map[string]any {
	return copyAnyMap(in)
}
