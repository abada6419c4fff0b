// Package core defines the result-link domain: identifiers, tokens, resources
// and page views, the configuration that binds them, and the error envelope
// every outcome maps to. Transports, stores and the Graph client plug in
// through the interfaces declared here and never the other way around.
package core
