package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

const testSecret = "00112233445566778899aabbccddeeff"

func runCommand(t *testing.T, opts *rootOptions, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(opts)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	output, err := runCommand(t, &rootOptions{}, "--help")
	if err != nil {
		t.Fatalf("help returned error: %v", err)
	}
	for _, expected := range []string{"resultlinkd", "Usage:", "Available Commands:", "serve", "keygen"} {
		if !strings.Contains(output, expected) {
			t.Errorf("help output missing %q\nGot: %s", expected, output)
		}
	}
}

func TestKeygen_PrintsEnvLines(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))
	output, err := runCommand(t, &rootOptions{random: random}, "keygen", "--kid", "k2", "--bytes", "16")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	expected := "RESULTLINK_TOKEN_KEYS=k2:hex:" + strings.Repeat("ab", 16) + "\nRESULTLINK_TOKEN_ACTIVE_KEY=k2\n"
	if output != expected {
		t.Fatalf("unexpected keygen output %q", output)
	}
}

func TestKeygen_RejectsBadInput(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat([]byte{1}, 64))
	if _, err := runCommand(t, &rootOptions{random: random}, "keygen", "--kid", "k.1"); err == nil {
		t.Fatalf("expected invalid key id error")
	}
	if _, err := runCommand(t, &rootOptions{random: random}, "keygen", "--bytes", "8"); err == nil {
		t.Fatalf("expected short secret error")
	}
	if _, err := runCommand(t, &rootOptions{random: bytes.NewReader(nil)}, "keygen"); err == nil {
		t.Fatalf("expected random source error")
	}
}

func TestToken_EncodeDecodeRoundTrip(t *testing.T) {
	opts := &rootOptions{environment: map[string]string{
		"RESULTLINK_TOKEN_KEYS":       "k1:" + testSecret,
		"RESULTLINK_TOKEN_ACTIVE_KEY": "k1",
	}}
	encoded, err := runCommand(t, opts, "token", "encode", "ad_77")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := strings.TrimSpace(encoded)
	if !strings.HasPrefix(raw, "v1.k1.") {
		t.Fatalf("unexpected token %q", raw)
	}

	decoded, err := runCommand(t, opts, "token", "decode", raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(decoded, "identifier: ad_77") || !strings.Contains(decoded, "key_id: k1") {
		t.Fatalf("unexpected decode output %q", decoded)
	}

	if _, err := runCommand(t, opts, "token", "decode", raw+"x"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
	if _, err := runCommand(t, &rootOptions{environment: map[string]string{}}, "token", "encode", "ad_1"); err == nil {
		t.Fatalf("expected missing keyring error")
	}
}

func TestMigrateAndPrune_SQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "resultlink.db") + "?_foreign_keys=on"
	opts := &rootOptions{environment: map[string]string{
		"RESULTLINK_DATABASE_DRIVER": "sqlite3",
		"RESULTLINK_DATABASE_DSN":    dsn,
	}}

	output, err := runCommand(t, opts, "--log-level", "error", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(output, "migrations applied (sqlite)") {
		t.Fatalf("unexpected migrate output %q", output)
	}

	output, err = runCommand(t, opts, "--log-level", "error", "prune", "--ttl", "1h")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(output, "pruned 0 page view events older than 1h0m0s") {
		t.Fatalf("unexpected prune output %q", output)
	}
}

func TestBootstrap_RejectsUnknownDriver(t *testing.T) {
	opts := &rootOptions{environment: map[string]string{"RESULTLINK_DATABASE_DRIVER": "oracle"}}
	if _, err := runCommand(t, opts, "--log-level", "error", "migrate"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
