package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig mirrors Config as RESULTLINK_* process variables. Token secrets
// are only accepted through this path so they never ship with static assets.
type EnvConfig struct {
	ServiceName string `env:"RESULTLINK_SERVICE_NAME"`

	TokenActiveKeyID  string            `env:"RESULTLINK_TOKEN_ACTIVE_KEY"`
	TokenKeys         map[string]string `env:"RESULTLINK_TOKEN_KEYS" envSeparator:"," envKeyValSeparator:":"`
	TokenExpiryWindow time.Duration     `env:"RESULTLINK_TOKEN_EXPIRY_WINDOW"`

	SingleResultPath     string `env:"RESULTLINK_ROUTES_SINGLE_RESULT_PATH"`
	ComparisonResultPath string `env:"RESULTLINK_ROUTES_COMPARISON_RESULT_PATH"`

	BackendBaseURL      string        `env:"RESULTLINK_BACKEND_BASE_URL"`
	BackendAnalyzePath  string        `env:"RESULTLINK_BACKEND_ANALYZE_PATH"`
	BackendUploadPath   string        `env:"RESULTLINK_BACKEND_UPLOAD_PATH"`
	BackendPaymentPath  string        `env:"RESULTLINK_BACKEND_PAYMENT_PATH"`
	BackendResourcePath string        `env:"RESULTLINK_BACKEND_RESOURCE_PATH"`
	BackendTimeout      time.Duration `env:"RESULTLINK_BACKEND_TIMEOUT"`

	GraphBaseURL        string        `env:"RESULTLINK_GRAPH_BASE_URL"`
	GraphVersion        string        `env:"RESULTLINK_GRAPH_VERSION"`
	GraphCacheTTL       time.Duration `env:"RESULTLINK_GRAPH_CACHE_TTL"`
	GraphMaxConcurrency int           `env:"RESULTLINK_GRAPH_MAX_CONCURRENCY"`
	GraphMaxPages       int           `env:"RESULTLINK_GRAPH_MAX_PAGES"`

	HTTPAddr            string        `env:"RESULTLINK_HTTP_ADDR"`
	HTTPReadTimeout     time.Duration `env:"RESULTLINK_HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout    time.Duration `env:"RESULTLINK_HTTP_WRITE_TIMEOUT"`
	HTTPShutdownTimeout time.Duration `env:"RESULTLINK_HTTP_SHUTDOWN_TIMEOUT"`

	EventsRetentionTTL  time.Duration `env:"RESULTLINK_EVENTS_RETENTION_TTL"`
	EventsPruneInterval time.Duration `env:"RESULTLINK_EVENTS_PRUNE_INTERVAL"`
	EventsQueue         string        `env:"RESULTLINK_EVENTS_QUEUE"`

	DatabaseDriver string `env:"RESULTLINK_DATABASE_DRIVER"`
	DatabaseDSN    string `env:"RESULTLINK_DATABASE_DSN"`
	DatabaseDebug  bool   `env:"RESULTLINK_DATABASE_DEBUG"`
}

// EnvRawConfigLoader reads RESULTLINK_* variables into the raw layer consumed
// by CfgxConfigProvider. Environment overrides the process environment when
// set.
type EnvRawConfigLoader struct {
	Environment map[string]string
}

func NewEnvRawConfigLoader() *EnvRawConfigLoader {
	return &EnvRawConfigLoader{}
}

func (l *EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	var raw EnvConfig
	var err error
	if l != nil && l.Environment != nil {
		err = env.ParseWithOptions(&raw, env.Options{Environment: l.Environment})
	} else {
		err = env.Parse(&raw)
	}
	if err != nil {
		return nil, fmt.Errorf("core: parse env: %w", err)
	}
	return raw.toRawMap()
}

func (e EnvConfig) toRawMap() (map[string]any, error) {
	out := map[string]any{}
	putString(out, "service_name", e.ServiceName, false)

	token := map[string]any{}
	putString(token, "active_key_id", e.TokenActiveKeyID, false)
	if len(e.TokenKeys) > 0 {
		keys := make(map[string]any, len(e.TokenKeys))
		for kid, secret := range e.TokenKeys {
			kid = strings.TrimSpace(kid)
			if kid == "" {
				continue
			}
			if _, exists := keys[kid]; exists {
				return nil, fmt.Errorf("core: RESULTLINK_TOKEN_KEYS repeats key id %q", kid)
			}
			keys[kid] = strings.TrimSpace(secret)
		}
		token["keys"] = keys
	}
	if e.TokenExpiryWindow != 0 {
		token["expiry_window"] = e.TokenExpiryWindow
	}
	putSection(out, "token", token)

	routes := map[string]any{}
	putString(routes, "single_result_path", e.SingleResultPath, false)
	putString(routes, "comparison_result_path", e.ComparisonResultPath, false)
	putSection(out, "routes", routes)

	backend := map[string]any{}
	putString(backend, "base_url", e.BackendBaseURL, false)
	putString(backend, "analyze_path", e.BackendAnalyzePath, false)
	putString(backend, "upload_path", e.BackendUploadPath, false)
	putString(backend, "payment_path", e.BackendPaymentPath, false)
	putString(backend, "resource_path", e.BackendResourcePath, false)
	if e.BackendTimeout != 0 {
		backend["timeout"] = e.BackendTimeout
	}
	putSection(out, "backend", backend)

	graph := map[string]any{}
	putString(graph, "base_url", e.GraphBaseURL, false)
	putString(graph, "version", e.GraphVersion, false)
	if e.GraphCacheTTL != 0 {
		graph["cache_ttl"] = e.GraphCacheTTL
	}
	if e.GraphMaxConcurrency != 0 {
		graph["max_concurrency"] = e.GraphMaxConcurrency
	}
	if e.GraphMaxPages != 0 {
		graph["max_pages"] = e.GraphMaxPages
	}
	putSection(out, "graph", graph)

	httpSection := map[string]any{}
	putString(httpSection, "addr", e.HTTPAddr, false)
	if e.HTTPReadTimeout != 0 {
		httpSection["read_timeout"] = e.HTTPReadTimeout
	}
	if e.HTTPWriteTimeout != 0 {
		httpSection["write_timeout"] = e.HTTPWriteTimeout
	}
	if e.HTTPShutdownTimeout != 0 {
		httpSection["shutdown_timeout"] = e.HTTPShutdownTimeout
	}
	putSection(out, "http", httpSection)

	eventsSection := map[string]any{}
	if e.EventsRetentionTTL != 0 {
		eventsSection["retention_ttl"] = e.EventsRetentionTTL
	}
	if e.EventsPruneInterval != 0 {
		eventsSection["prune_interval"] = e.EventsPruneInterval
	}
	putString(eventsSection, "queue", e.EventsQueue, false)
	putSection(out, "events", eventsSection)

	database := map[string]any{}
	putString(database, "driver", e.DatabaseDriver, false)
	putString(database, "dsn", e.DatabaseDSN, false)
	if e.DatabaseDebug {
		database["debug"] = true
	}
	putSection(out, "database", database)

	return out, nil
}

var _ RawConfigLoader = (*EnvRawConfigLoader)(nil)
