package core

import (
	"context"
	"testing"
	"time"
)

func TestEnvRawConfigLoader_ReadsResultlinkVariables(t *testing.T) {
	loader := NewEnvRawConfigLoader()
	loader.Environment = map[string]string{
		"RESULTLINK_SERVICE_NAME":          "resultlink-test",
		"RESULTLINK_TOKEN_ACTIVE_KEY":      "k2",
		"RESULTLINK_TOKEN_KEYS":            "k1:aaaa, k2:bbbb",
		"RESULTLINK_TOKEN_EXPIRY_WINDOW":   "720h",
		"RESULTLINK_BACKEND_BASE_URL":      "https://api.example.test",
		"RESULTLINK_GRAPH_MAX_PAGES":       "3",
		"RESULTLINK_EVENTS_RETENTION_TTL":  "48h",
		"RESULTLINK_EVENTS_PRUNE_INTERVAL": "15m",
		"RESULTLINK_EVENTS_QUEUE":          "memory",
		"RESULTLINK_DATABASE_DRIVER":       "postgres",
	}

	cfg, err := NewCfgxConfigProvider(loader).Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "resultlink-test" || cfg.Token.ActiveKeyID != "k2" {
		t.Fatalf("unexpected identity fields %#v", cfg)
	}
	if cfg.Token.Keys["k1"] != "aaaa" || cfg.Token.Keys["k2"] != "bbbb" {
		t.Fatalf("expected trimmed key map, got %#v", cfg.Token.Keys)
	}
	if cfg.Token.ExpiryWindow != 720*time.Hour {
		t.Fatalf("expected expiry window, got %s", cfg.Token.ExpiryWindow)
	}
	if cfg.Backend.BaseURL != "https://api.example.test" || cfg.Graph.MaxPages != 3 {
		t.Fatalf("unexpected backend/graph %#v %#v", cfg.Backend, cfg.Graph)
	}
	if cfg.Events.RetentionTTL != 48*time.Hour || cfg.Events.PruneInterval != 15*time.Minute || cfg.Events.Queue != EventQueueMemory {
		t.Fatalf("unexpected events config %#v", cfg.Events)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != DefaultDatabaseDSN {
		t.Fatalf("expected driver override with default dsn, got %#v", cfg.Database)
	}
	if cfg.Routes.SingleResultPath != DefaultSingleResultPath {
		t.Fatalf("expected default routes kept, got %q", cfg.Routes.SingleResultPath)
	}
}

func TestEnvRawConfigLoader_RejectsInvalidValues(t *testing.T) {
	loader := &EnvRawConfigLoader{Environment: map[string]string{"RESULTLINK_GRAPH_MAX_PAGES": "many"}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}

	loader = &EnvRawConfigLoader{Environment: map[string]string{"RESULTLINK_BACKEND_RESOURCE_PATH": "/ads"}}
	if _, err := NewCfgxConfigProvider(loader).Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected resource path without {id} to fail validation")
	}

	loader = &EnvRawConfigLoader{Environment: map[string]string{"RESULTLINK_EVENTS_QUEUE": "kafka"}}
	if _, err := NewCfgxConfigProvider(loader).Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected unknown events queue to fail validation")
	}
}

func TestEnvRawConfigLoader_RejectsRepeatedKeyIDs(t *testing.T) {
	loader := &EnvRawConfigLoader{Environment: map[string]string{
		"RESULTLINK_TOKEN_KEYS": "k1:first-secret-value-123, k1 :other-secret-value-456",
	}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected repeated key id error")
	}

	loader.Environment["RESULTLINK_TOKEN_KEYS"] = "k1:hex:00112233445566778899aabbccddeeff"
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	token, _ := raw["token"].(map[string]any)
	keys, _ := token["keys"].(map[string]any)
	if keys["k1"] != "hex:00112233445566778899aabbccddeeff" {
		t.Fatalf("expected prefixed secret kept intact, got %#v", raw["token"])
	}
}
