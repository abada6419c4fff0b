package core

import "testing"

func TestRedactSensitiveMapPreservesCorrelationKeys(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"request_id":        "req_1",
		"token_fingerprint": "a1b2c3",
		"token_param":       "ad-token",
		"key_id":            "k1",
		"access_token":      "EAAB-secret",
		"authorization":     "Bearer secret",
		"nested":            map[string]any{"raw_token": "v1.k1.x.y", "session_id": "s-1"},
		"items":             []any{map[string]any{"api_key": "key_1"}, "plain"},
	})

	for _, key := range []string{"request_id", "token_fingerprint", "token_param", "key_id"} {
		if redacted[key] == RedactedValue {
			t.Fatalf("expected %s to stay visible", key)
		}
	}
	if redacted["access_token"] != RedactedValue || redacted["authorization"] != RedactedValue {
		t.Fatalf("expected credentials to be redacted, got %#v", redacted)
	}
	nested := redacted["nested"].(map[string]any)
	if nested["raw_token"] != RedactedValue {
		t.Fatalf("expected nested token redacted, got %#v", nested["raw_token"])
	}
	if nested["session_id"] != "s-1" {
		t.Fatalf("expected session_id visible, got %#v", nested["session_id"])
	}
	items := redacted["items"].([]any)
	if items[0].(map[string]any)["api_key"] != RedactedValue || items[1] != "plain" {
		t.Fatalf("expected slice entries redacted in place, got %#v", items)
	}
}

func TestRedactSensitiveMapEmpty(t *testing.T) {
	if out := RedactSensitiveMap(nil); out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", out)
	}
}

func TestConfigRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.Keys = map[string]string{"k1": "00112233445566778899aabbccddeeff"}
	cfg.Database.DSN = "postgres://user:pass@db/resultlink"

	redacted := cfg.Redacted()
	if redacted.Token.Keys["k1"] != RedactedValue {
		t.Fatalf("expected key secret redacted, got %q", redacted.Token.Keys["k1"])
	}
	if redacted.Database.DSN != RedactedValue {
		t.Fatalf("expected dsn redacted, got %q", redacted.Database.DSN)
	}
	if cfg.Token.Keys["k1"] == RedactedValue {
		t.Fatalf("expected source config untouched")
	}
}

func TestRedactorMasksURLQueryCredentials(t *testing.T) {
	r := Redactor{MaskURLs: true}
	out := r.Map(map[string]any{
		"path":    "/results?ad-token=v1.k1.abc.def&utm=x",
		"plain":   "no query here",
		"key_id":  "k1",
		"entries": []any{"/r?access_token=EAAB"},
	})
	if out["path"] != "/results?ad-token=%5BREDACTED%5D&utm=x" {
		t.Fatalf("unexpected masked path %q", out["path"])
	}
	if out["plain"] != "no query here" {
		t.Fatalf("expected plain string untouched, got %q", out["plain"])
	}
	if out["entries"].([]any)[0] != "/r?access_token=%5BREDACTED%5D" {
		t.Fatalf("unexpected masked entry %v", out["entries"])
	}
	if r.URL("/results?utm=x") != "/results?utm=x" {
		t.Fatalf("expected URL without credentials unchanged")
	}
	if LogRedactor.Sensitive("key_id") || !LogRedactor.Sensitive("Access_Token") {
		t.Fatalf("unexpected log redactor classification")
	}
}
