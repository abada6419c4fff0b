package core

import (
	"net/url"
	"strings"
)

const RedactedValue = "[REDACTED]"

var credentialMarkers = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"access_key",
	"bearer",
	"credential",
	"signature",
}

// correlationKeys contain a credential marker but only identify a request or
// a key, so logs keep them readable.
var correlationKeys = map[string]struct{}{
	"token_fingerprint": {},
	"token_param":       {},
	"key_id":            {},
	"idempotency_key":   {},
	"session_id":        {},
	"trace_id":          {},
	"request_id":        {},
}

// Redactor masks credential-like entries in metadata maps. With MaskURLs set,
// string values that look like URLs have their credential query parameters
// masked too, which covers stored paths carrying a result token.
type Redactor struct {
	KeepCorrelation bool
	MaskURLs        bool
}

// LogRedactor is used for log and metric fields.
var LogRedactor = Redactor{KeepCorrelation: true}

// RedactSensitiveMap copies metadata with credential-like keys masked at any
// depth. Correlation keys stay readable.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	return LogRedactor.Map(metadata)
}

// Map returns a masked copy of metadata. It never returns nil.
func (r Redactor) Map(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if r.Sensitive(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = r.value(value)
	}
	return out
}

// URL masks credential query parameters in raw. Values without a query or
// that do not parse come back unchanged.
func (r Redactor) URL(raw string) string {
	if !strings.Contains(raw, "?") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	masked := false
	for key := range query {
		if r.Sensitive(key) {
			query.Set(key, RedactedValue)
			masked = true
		}
	}
	if !masked {
		return raw
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (r Redactor) Sensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if r.KeepCorrelation {
		if _, ok := correlationKeys[key]; ok {
			return false
		}
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func (r Redactor) value(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return r.Map(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = r.value(item)
		}
		return out
	case string:
		if r.MaskURLs {
			return r.URL(typed)
		}
		return typed
	default:
		return value
	}
}
