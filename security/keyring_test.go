package security

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-resultlink/core"
)

func TestKeyring_SignVerifyRoundTrip(t *testing.T) {
	ring, err := NewKeyring(map[string][]byte{
		"k1": []byte("0123456789abcdef-one"),
		"k2": []byte("0123456789abcdef-two"),
	}, "k2")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}

	if ring.ActiveKeyID() != "k2" {
		t.Fatalf("expected active key k2, got %q", ring.ActiveKeyID())
	}
	tag, err := ring.Sign(ring.ActiveKeyID(), []byte("v1.k2.payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ring.Sign("missing", []byte("v1.k2.payload")); err == nil {
		t.Fatalf("expected unknown key id to fail signing")
	}
	if !ring.Verify("k2", []byte("v1.k2.payload"), tag) {
		t.Fatalf("expected tag to verify")
	}
	if ring.Verify("k1", []byte("v1.k2.payload"), tag) {
		t.Fatalf("expected tag to fail under a different key")
	}
	if ring.Verify("k2", []byte("v1.k2.payloae"), tag) {
		t.Fatalf("expected tag to fail for altered message")
	}
	if ring.Verify("missing", []byte("v1.k2.payload"), tag) {
		t.Fatalf("expected unknown key id to fail")
	}
}

func TestNewKeyring_RejectsInvalidConfiguration(t *testing.T) {
	cases := map[string]struct {
		keys   map[string][]byte
		active string
	}{
		"empty":          {keys: nil, active: "k1"},
		"missing active": {keys: map[string][]byte{"k1": []byte("0123456789abcdef")}, active: ""},
		"unknown active": {keys: map[string][]byte{"k1": []byte("0123456789abcdef")}, active: "k9"},
		"short key":      {keys: map[string][]byte{"k1": []byte("short")}, active: "k1"},
		"dotted kid":     {keys: map[string][]byte{"k.1": []byte("0123456789abcdef")}, active: "k.1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewKeyring(tc.keys, tc.active); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeSecret_Encodings(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef")

	decoded, err := DecodeSecret(" hex:" + hex.EncodeToString(raw) + " ")
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("expected hex secret to decode to raw bytes")
	}

	decoded, err = DecodeSecret("base64:" + base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("expected base64 secret to decode to raw bytes")
	}

	for _, text := range []string{"not-encoded secret value!", "second-secret-value-456", hex.EncodeToString(raw)} {
		plain, err := DecodeSecret(text)
		if err != nil {
			t.Fatalf("decode raw %q: %v", text, err)
		}
		if string(plain) != text {
			t.Fatalf("expected raw fallback for %q, got %q", text, string(plain))
		}
	}

	for _, bad := range []string{"  ", "hex:zz", "base64:***"} {
		if _, err := DecodeSecret(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDecodeSecret_KeepsEdgeBytes(t *testing.T) {
	material := bytes.Repeat([]byte{0x42}, 32)
	material[0] = 0x0a
	material[31] = 0x20

	decoded, err := DecodeSecret(EncodeSecret(material))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, material) {
		t.Fatalf("expected 32 bytes preserved, got %d", len(decoded))
	}

	short := bytes.Repeat([]byte{0x42}, MinKeyBytes)
	short[0], short[MinKeyBytes-1] = 0x09, 0x0d
	ring, err := NewKeyringFromConfig(core.TokenConfig{
		ActiveKeyID: "k1",
		Keys:        map[string]string{"k1": EncodeSecret(short)},
	})
	if err != nil {
		t.Fatalf("expected 16-byte key with whitespace edge bytes to load, got %v", err)
	}
	tag, err := ring.Sign("k1", []byte("payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !bytes.Equal(tag, mac(short, []byte("payload"))) {
		t.Fatalf("expected signing with the untrimmed material")
	}
}

func TestNewKeyring_RejectsIDsCollidingAfterTrim(t *testing.T) {
	keys := map[string][]byte{
		"k1":  []byte("first-secret-value-123"),
		" k1": []byte("other-secret-value-456"),
	}
	if _, err := NewKeyring(keys, "k1"); err == nil {
		t.Fatalf("expected duplicate key id error")
	}
	if _, err := NewKeyringFromConfig(core.TokenConfig{
		ActiveKeyID: "k1",
		Keys:        map[string]string{"k1": "first-secret-value-123", "k1 ": "other-secret-value-456"},
	}); err == nil {
		t.Fatalf("expected duplicate key id error from config")
	}
}

func TestParseKeySpec(t *testing.T) {
	keys, err := ParseKeySpec("k1:first-secret-value-123, k2:second-secret-value-456")
	if err != nil {
		t.Fatalf("parse key spec: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected two keys, got %d", len(keys))
	}
	if string(keys["k2"]) != "second-secret-value-456" {
		t.Fatalf("unexpected k2 material %q", string(keys["k2"]))
	}

	keys, err = ParseKeySpec("k3:hex:000102030405060708090a0b0c0d0e0f")
	if err != nil {
		t.Fatalf("parse prefixed key spec: %v", err)
	}
	if len(keys["k3"]) != 16 || keys["k3"][15] != 0x0f {
		t.Fatalf("expected hex-decoded k3 material, got %x", keys["k3"])
	}

	for _, spec := range []string{"", "k1", "k1:a,k1:b", "k1:a, k1 :b", ":secret", "k1:hex:xyz"} {
		if _, err := ParseKeySpec(spec); err == nil {
			t.Fatalf("expected error for spec %q", spec)
		}
	}
}

func TestNewKeyringFromConfig(t *testing.T) {
	ring, err := NewKeyringFromConfig(core.TokenConfig{
		ActiveKeyID: "k1",
		Keys: map[string]string{
			"k1": "hex:5f0e3a7c9d1b2e4f6a8c0d2e4f6a8b0c",
			"k2": "raw-secret-value-0123456789",
		},
	})
	if err != nil {
		t.Fatalf("keyring from config: %v", err)
	}
	if got := ring.KeyIDs(); len(got) != 2 || got[0] != "k1" || got[1] != "k2" {
		t.Fatalf("unexpected key ids %v", got)
	}
}
