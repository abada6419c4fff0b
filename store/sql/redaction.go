package sqlstore

import "github.com/goliatone/go-resultlink/core"

// storeRedactor masks every credential marker, correlation keys included,
// and rewrites URL-shaped strings so result tokens never reach the table.
var storeRedactor = core.Redactor{MaskURLs: true}

// RedactMetadata copies metadata with sensitive keys masked at any depth.
func RedactMetadata(metadata map[string]any) map[string]any {
	return storeRedactor.Map(metadata)
}

// RedactURL masks sensitive query parameters, such as result tokens, in a
// stored path or referrer.
func RedactURL(raw string) string {
	return storeRedactor.URL(raw)
}
