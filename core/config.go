package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultServiceName          = "resultlink"
	DefaultActiveKeyID          = "k1"
	DefaultBackendTimeout       = 30 * time.Second
	DefaultBackendBodyLimit     = 10 << 20
	DefaultGraphBaseURL         = "https://graph.facebook.com"
	DefaultGraphVersion         = "v23.0"
	DefaultGraphCacheTTL        = 5 * time.Minute
	DefaultGraphMaxConcurrency  = 4
	DefaultGraphMaxPages        = 5
	DefaultHTTPAddr             = ":8080"
	DefaultHTTPReadTimeout      = 15 * time.Second
	DefaultHTTPWriteTimeout     = 60 * time.Second
	DefaultHTTPShutdownTimeout  = 10 * time.Second
	DefaultEventRetentionTTL    = 90 * 24 * time.Hour
	DefaultEventPruneInterval   = time.Hour
	DefaultEventQueue           = EventQueueDatabase
	DefaultDatabaseDriver       = "sqlite3"
	DefaultDatabaseDSN          = "file:resultlink.db?cache=shared&_foreign_keys=on"
	DefaultBackendAnalyzePath   = "/analyze"
	DefaultBackendUploadPath    = "/upload"
	DefaultBackendPaymentPath   = "/payment"
	DefaultBackendResourcePath  = "/ads/{id}"
	ResourcePathIdentifierToken = "{id}"
)

type TokenConfig struct {
	ActiveKeyID string `koanf:"active_key_id" mapstructure:"active_key_id"`
	// Keys maps key ids to secret material. Never logged.
	Keys         map[string]string `koanf:"keys" mapstructure:"keys"`
	ExpiryWindow time.Duration     `koanf:"expiry_window" mapstructure:"expiry_window"`
}

type RoutesConfig struct {
	SingleResultPath     string `koanf:"single_result_path" mapstructure:"single_result_path"`
	ComparisonResultPath string `koanf:"comparison_result_path" mapstructure:"comparison_result_path"`
	TokenParam           string `koanf:"token_param" mapstructure:"token_param"`
	TokenParamA          string `koanf:"token_param_a" mapstructure:"token_param_a"`
	TokenParamB          string `koanf:"token_param_b" mapstructure:"token_param_b"`
}

type BackendConfig struct {
	BaseURL              string        `koanf:"base_url" mapstructure:"base_url"`
	AnalyzePath          string        `koanf:"analyze_path" mapstructure:"analyze_path"`
	UploadPath           string        `koanf:"upload_path" mapstructure:"upload_path"`
	PaymentPath          string        `koanf:"payment_path" mapstructure:"payment_path"`
	ResourcePath         string        `koanf:"resource_path" mapstructure:"resource_path"`
	Timeout              time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type GraphConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	Version        string        `koanf:"version" mapstructure:"version"`
	CacheTTL       time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	MaxConcurrency int           `koanf:"max_concurrency" mapstructure:"max_concurrency"`
	MaxPages       int           `koanf:"max_pages" mapstructure:"max_pages"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Retention queue backends.
const (
	EventQueueMemory   = "memory"
	EventQueueDatabase = "database"
)

// EventsConfig bounds how long page_view events are kept. A zero
// RetentionTTL keeps events forever.
type EventsConfig struct {
	RetentionTTL  time.Duration `koanf:"retention_ttl" mapstructure:"retention_ttl"`
	PruneInterval time.Duration `koanf:"prune_interval" mapstructure:"prune_interval"`
	// Queue selects where retention runs are queued: "database" shares the
	// configured database between replicas, "memory" stays in process.
	Queue string `koanf:"queue" mapstructure:"queue"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Token       TokenConfig    `koanf:"token" mapstructure:"token"`
	Routes      RoutesConfig   `koanf:"routes" mapstructure:"routes"`
	Backend     BackendConfig  `koanf:"backend" mapstructure:"backend"`
	Graph       GraphConfig    `koanf:"graph" mapstructure:"graph"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Events      EventsConfig   `koanf:"events" mapstructure:"events"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: DefaultServiceName,
		Token: TokenConfig{
			ActiveKeyID: DefaultActiveKeyID,
			Keys:        map[string]string{},
		},
		Routes: RoutesConfig{
			SingleResultPath:     DefaultSingleResultPath,
			ComparisonResultPath: DefaultComparisonResultPath,
			TokenParam:           DefaultTokenParam,
			TokenParamA:          DefaultTokenParamA,
			TokenParamB:          DefaultTokenParamB,
		},
		Backend: BackendConfig{
			AnalyzePath:          DefaultBackendAnalyzePath,
			UploadPath:           DefaultBackendUploadPath,
			PaymentPath:          DefaultBackendPaymentPath,
			ResourcePath:         DefaultBackendResourcePath,
			Timeout:              DefaultBackendTimeout,
			MaxResponseBodyBytes: DefaultBackendBodyLimit,
		},
		Graph: GraphConfig{
			BaseURL:        DefaultGraphBaseURL,
			Version:        DefaultGraphVersion,
			CacheTTL:       DefaultGraphCacheTTL,
			MaxConcurrency: DefaultGraphMaxConcurrency,
			MaxPages:       DefaultGraphMaxPages,
		},
		HTTP: HTTPConfig{
			Addr:            DefaultHTTPAddr,
			ReadTimeout:     DefaultHTTPReadTimeout,
			WriteTimeout:    DefaultHTTPWriteTimeout,
			ShutdownTimeout: DefaultHTTPShutdownTimeout,
		},
		Events: EventsConfig{
			RetentionTTL:  DefaultEventRetentionTTL,
			PruneInterval: DefaultEventPruneInterval,
			Queue:         DefaultEventQueue,
		},
		Database: DatabaseConfig{
			Driver: DefaultDatabaseDriver,
			DSN:    DefaultDatabaseDSN,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Token.ExpiryWindow < 0 {
		return fmt.Errorf("core: token.expiry_window must not be negative")
	}
	if err := c.Routes.validate(); err != nil {
		return err
	}
	if base := strings.TrimSpace(c.Backend.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: backend.base_url is invalid: %q", base)
		}
	}
	if path := strings.TrimSpace(c.Backend.ResourcePath); path != "" && !strings.Contains(path, ResourcePathIdentifierToken) {
		return fmt.Errorf("core: backend.resource_path must contain %s", ResourcePathIdentifierToken)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("core: backend.timeout must not be negative")
	}
	if strings.TrimSpace(c.Graph.Version) == "" {
		return fmt.Errorf("core: graph.version is required")
	}
	if c.Graph.MaxConcurrency < 0 || c.Graph.MaxPages < 0 {
		return fmt.Errorf("core: graph limits must not be negative")
	}
	if c.Events.RetentionTTL < 0 || c.Events.PruneInterval < 0 {
		return fmt.Errorf("core: events durations must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Events.Queue)) {
	case "", EventQueueMemory, EventQueueDatabase:
	default:
		return fmt.Errorf("core: events.queue must be %q or %q", EventQueueMemory, EventQueueDatabase)
	}
	return nil
}

func (r RoutesConfig) validate() error {
	for name, path := range map[string]string{
		"routes.single_result_path":     r.SingleResultPath,
		"routes.comparison_result_path": r.ComparisonResultPath,
	} {
		if !strings.HasPrefix(strings.TrimSpace(path), "/") {
			return fmt.Errorf("core: %s must be an absolute path", name)
		}
	}
	params := []string{
		strings.TrimSpace(r.TokenParam),
		strings.TrimSpace(r.TokenParamA),
		strings.TrimSpace(r.TokenParamB),
	}
	for _, param := range params {
		if param == "" {
			return fmt.Errorf("core: routes token params are required")
		}
	}
	if params[1] == params[2] {
		return fmt.Errorf("core: routes.token_param_a and routes.token_param_b must differ")
	}
	return nil
}

// Redacted returns a copy safe to log: token secrets are replaced by their key
// ids only.
func (c Config) Redacted() Config {
	out := c
	out.Token.Keys = make(map[string]string, len(c.Token.Keys))
	for kid := range c.Token.Keys {
		out.Token.Keys[kid] = RedactedValue
	}
	if strings.TrimSpace(c.Database.DSN) != "" {
		out.Database.DSN = RedactedValue
	}
	return out
}
