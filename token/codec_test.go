package token

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/security"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestKeyring(t *testing.T, active string, secrets map[string]string) *security.Keyring {
	t.Helper()
	keys := make(map[string][]byte, len(secrets))
	for kid, secret := range secrets {
		keys[kid] = []byte(secret)
	}
	ring, err := security.NewKeyring(keys, active)
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	return ring
}

func newTestCodec(t *testing.T, clock core.Clock, opts ...Option) *Codec {
	t.Helper()
	ring := newTestKeyring(t, "k1", map[string]string{"k1": "issuer-secret-0123456789"})
	codec, err := NewCodec(ring, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func fixedClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	for _, id := range []core.Identifier{"ad_4821", "42", "cmp/9 with spaces", "ünïcode-ad", " padded "} {
		tok, err := codec.Encode(id)
		if err != nil {
			t.Fatalf("encode %q: %v", id, err)
		}
		got, err := codec.Decode(tok)
		if err != nil {
			t.Fatalf("decode %q: %v", id, err)
		}
		if got != id {
			t.Fatalf("expected %q, got %q", id, got)
		}
	}
}

func TestCodec_EncodeDecodeAd4821(t *testing.T) {
	codec := newTestCodec(t, core.SystemClock{})
	tok, err := codec.Encode("ad_4821")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "ad_4821" {
		t.Fatalf("expected ad_4821, got %q", got)
	}
	if strings.Contains(tok, "ad_4821") {
		t.Fatalf("expected token not to expose the raw identifier: %q", tok)
	}
}

func TestCodec_TokensAreURLSafeAndDistinct(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	seen := map[string]core.Identifier{}
	for _, id := range []core.Identifier{"ad_1", "ad_2", "ad_10", "ad_100", "b", "B"} {
		tok, err := codec.Encode(id)
		if err != nil {
			t.Fatalf("encode %q: %v", id, err)
		}
		if escaped := url.QueryEscape(tok); escaped != tok {
			t.Fatalf("expected token to need no escaping, got %q", escaped)
		}
		if previous, ok := seen[tok]; ok {
			t.Fatalf("token collision between %q and %q", previous, id)
		}
		seen[tok] = id
	}
}

func TestCodec_EncodeRejectsBlankIdentifier(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	for _, id := range []core.Identifier{"", "   "} {
		if _, err := codec.Encode(id); err == nil {
			t.Fatalf("expected blank identifier %q to be rejected", id)
		}
	}
}

func TestCodec_DecodeEmptyIsMalformed(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	_, err := codec.Decode("")
	kind, ok := KindOf(err)
	if !ok || kind != FailureMalformed {
		t.Fatalf("expected malformed failure, got %v", err)
	}
}

func TestCodec_DecodeGarbageIsMalformed(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	inputs := []string{
		"ad_4821",
		"v1",
		"v1.k1",
		"v1.k1.body",
		"v2.k1.e30.AAAA",
		"v1..e30.AAAA",
		"v1.k1.e30.not base64!",
		"v1.k1.e30.AAAA",
		"....",
		strings.Repeat("a", MaxLength+1),
	}
	for _, input := range inputs {
		_, err := codec.Decode(input)
		kind, ok := KindOf(err)
		if !ok || kind != FailureMalformed {
			t.Fatalf("expected malformed failure for %q, got %v", input, err)
		}
	}
}

func TestCodec_SingleCharacterTamperNeverYieldsIdentifier(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	tok, err := codec.Encode("ad_4821")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < len(tok); i++ {
		for _, replacement := range []byte{'A', 'B', '-', '_', '.'} {
			if tok[i] == replacement {
				continue
			}
			tampered := tok[:i] + string(replacement) + tok[i+1:]
			got, err := codec.Decode(tampered)
			if err == nil {
				t.Fatalf("expected tampered token at %d to fail, got %q", i, got)
			}
			kind, ok := KindOf(err)
			if !ok || (kind != FailureMalformed && kind != FailureIntegrityMismatch) {
				t.Fatalf("unexpected failure for tamper at %d: %v", i, err)
			}
		}
	}
}

func TestCodec_CannotForgeWithoutKey(t *testing.T) {
	clock := fixedClock()
	victim := newTestCodec(t, clock)

	attackerRing := newTestKeyring(t, "k1", map[string]string{"k1": "attacker-guess-0123456789"})
	attacker, err := NewCodec(attackerRing, WithClock(clock))
	if err != nil {
		t.Fatalf("new attacker codec: %v", err)
	}
	forged, err := attacker.Encode("ad_admin")
	if err != nil {
		t.Fatalf("encode forged: %v", err)
	}
	_, err = victim.Decode(forged)
	if kind, ok := KindOf(err); !ok || kind != FailureIntegrityMismatch {
		t.Fatalf("expected integrity mismatch, got %v", err)
	}

	// substitute the payload of a genuine token
	genuine, err := victim.Encode("ad_1")
	if err != nil {
		t.Fatalf("encode genuine: %v", err)
	}
	parts := strings.Split(genuine, ".")
	parts[2] = base64.RawURLEncoding.EncodeToString([]byte(`{"id":"ad_2","iat":1773480413}`))
	_, err = victim.Decode(strings.Join(parts, "."))
	if kind, ok := KindOf(err); !ok || kind != FailureIntegrityMismatch {
		t.Fatalf("expected integrity mismatch for substituted payload, got %v", err)
	}

	// unknown key ids are treated as a mismatch
	parts = strings.Split(genuine, ".")
	parts[1] = "k9"
	_, err = victim.Decode(strings.Join(parts, "."))
	if kind, ok := KindOf(err); !ok || kind != FailureIntegrityMismatch {
		t.Fatalf("expected integrity mismatch for unknown key, got %v", err)
	}
}

func TestCodec_ExpiryWindow(t *testing.T) {
	clock := fixedClock()
	window := 10 * time.Minute
	codec := newTestCodec(t, clock, WithExpiryWindow(window))
	issuedAt := clock.now

	tok, err := codec.Encode("ad_77")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	clock.now = issuedAt.Add(window - time.Second)
	got, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("expected token inside window to decode: %v", err)
	}
	if got != "ad_77" {
		t.Fatalf("expected ad_77, got %q", got)
	}

	clock.now = issuedAt.Add(window + time.Second)
	_, err = codec.Decode(tok)
	if kind, ok := KindOf(err); !ok || kind != FailureExpired {
		t.Fatalf("expected expired failure, got %v", err)
	}
}

func TestCodec_NoExpiryWhenWindowUnset(t *testing.T) {
	clock := fixedClock()
	codec := newTestCodec(t, clock)
	tok, err := codec.Encode("ad_77")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	clock.now = clock.now.Add(24 * 365 * time.Hour)
	if _, err := codec.Decode(tok); err != nil {
		t.Fatalf("expected token without expiry window to decode: %v", err)
	}
}

func TestCodec_VerifiesRetiredKeysAfterRotation(t *testing.T) {
	clock := fixedClock()
	oldRing := newTestKeyring(t, "k1", map[string]string{"k1": "first-secret-0123456789"})
	oldCodec, err := NewCodec(oldRing, WithClock(clock))
	if err != nil {
		t.Fatalf("new old codec: %v", err)
	}
	tok, err := oldCodec.Encode("ad_9")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rotated := newTestKeyring(t, "k2", map[string]string{
		"k1": "first-secret-0123456789",
		"k2": "second-secret-0123456789",
	})
	newCodec, err := NewCodec(rotated, WithClock(clock))
	if err != nil {
		t.Fatalf("new rotated codec: %v", err)
	}
	claims, err := newCodec.DecodeClaims(tok)
	if err != nil {
		t.Fatalf("decode with rotated ring: %v", err)
	}
	if claims.Identifier != "ad_9" || claims.KeyID != "k1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.IssuedAt.Equal(clock.now) {
		t.Fatalf("expected issued at %s, got %s", clock.now, claims.IssuedAt)
	}

	fresh, err := newCodec.Encode("ad_9")
	if err != nil {
		t.Fatalf("encode fresh: %v", err)
	}
	if !strings.HasPrefix(fresh, "v1.k2.") {
		t.Fatalf("expected fresh token to use active key, got %q", fresh)
	}
}

func TestDecodeError_Envelope(t *testing.T) {
	cases := map[FailureKind]string{
		FailureMalformed:         core.ErrorTokenMalformed,
		FailureIntegrityMismatch: core.ErrorTokenIntegrityMismatch,
		FailureExpired:           core.ErrorTokenExpired,
	}
	for kind, textCode := range cases {
		envelope := (&DecodeError{Kind: kind, Reason: "test"}).Envelope()
		if envelope.TextCode != textCode {
			t.Fatalf("expected text code %q for %s, got %q", textCode, kind, envelope.TextCode)
		}
		if envelope.Code != 400 {
			t.Fatalf("expected 400 for %s, got %d", kind, envelope.Code)
		}
	}
}

func TestNewCodec_RequiresSigner(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Fatalf("expected nil signer error")
	}
}

func TestCodec_EncodeRejectsInvalidUTF8(t *testing.T) {
	codec := newTestCodec(t, fixedClock())
	for _, id := range []core.Identifier{"ad_\xff", "ad_\xfe"} {
		if tok, err := codec.Encode(id); err == nil {
			t.Fatalf("expected %q to be rejected, got token %q", id, tok)
		}
	}
}

func TestCodec_EncodeLengthBoundary(t *testing.T) {
	codec := newTestCodec(t, fixedClock())

	// The payload of a 1472-byte identifier puts the token exactly at MaxLength.
	longest := core.Identifier(strings.Repeat("a", 1472))
	tok, err := codec.Encode(longest)
	if err != nil {
		t.Fatalf("encode at boundary: %v", err)
	}
	if len(tok) != MaxLength {
		t.Fatalf("expected token of %d bytes, got %d", MaxLength, len(tok))
	}
	got, err := codec.Decode(tok)
	if err != nil || got != longest {
		t.Fatalf("expected boundary token to decode, got err=%v", err)
	}

	for _, n := range []int{1473, 1600} {
		if _, err := codec.Encode(core.Identifier(strings.Repeat("a", n))); err == nil {
			t.Fatalf("expected %d-byte identifier to be rejected", n)
		}
	}
}
