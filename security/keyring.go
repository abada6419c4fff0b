package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-resultlink/core"
)

// MinKeyBytes is the shortest secret accepted for token signing.
const MinKeyBytes = 16

// Keyring holds the HMAC secrets used to sign and verify result tokens. New
// tokens are always signed with the active key; older keys stay verifiable
// until they are removed from configuration.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("security: token keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("security: active key id is required")
	}

	normalized := make(map[string][]byte, len(keys))
	for rawKID, material := range keys {
		kid := strings.TrimSpace(rawKID)
		if err := ValidateKeyID(kid); err != nil {
			return nil, err
		}
		if _, exists := normalized[kid]; exists {
			return nil, fmt.Errorf("security: duplicate key id %q", kid)
		}
		if len(material) < MinKeyBytes {
			return nil, fmt.Errorf("security: key %q must be at least %d bytes", kid, MinKeyBytes)
		}
		normalized[kid] = append([]byte(nil), material...)
	}
	if _, ok := normalized[activeKeyID]; !ok {
		return nil, fmt.Errorf("security: active key id %q is not configured", activeKeyID)
	}
	return &Keyring{keys: normalized, activeKeyID: activeKeyID}, nil
}

// NewKeyringFromConfig decodes each configured secret with DecodeSecret.
func NewKeyringFromConfig(cfg core.TokenConfig) (*Keyring, error) {
	keys := make(map[string][]byte, len(cfg.Keys))
	for rawKID, secret := range cfg.Keys {
		kid := strings.TrimSpace(rawKID)
		if _, exists := keys[kid]; exists {
			return nil, fmt.Errorf("security: duplicate key id %q", kid)
		}
		material, err := DecodeSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("security: key %q: %w", kid, err)
		}
		keys[kid] = material
	}
	return NewKeyring(keys, cfg.ActiveKeyID)
}

func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// KeyIDs lists configured key ids in sorted order.
func (k *Keyring) KeyIDs() []string {
	if k == nil {
		return nil
	}
	ids := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

func (k *Keyring) Has(keyID string) bool {
	if k == nil {
		return false
	}
	_, ok := k.keys[keyID]
	return ok
}

// Sign returns the HMAC-SHA256 tag of message under keyID.
func (k *Keyring) Sign(keyID string, message []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("security: key id %q is not configured", keyID)
	}
	return mac(key, message), nil
}

// Verify reports whether tag authenticates message under keyID. Unknown key
// ids never verify.
func (k *Keyring) Verify(keyID string, message []byte, tag []byte) bool {
	if k == nil {
		return false
	}
	key, ok := k.keys[keyID]
	if !ok {
		return false
	}
	return hmac.Equal(mac(key, message), tag)
}

func mac(key []byte, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(message)
	return h.Sum(nil)
}

const (
	HexSecretPrefix    = "hex:"
	Base64SecretPrefix = "base64:"
)

// DecodeSecret turns a configured secret into key material. A "hex:" or
// "base64:" prefix selects the encoding; anything else is used as raw text.
// Surrounding whitespace is trimmed from the string, never from the decoded
// bytes.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return nil, fmt.Errorf("secret is required")
	case strings.HasPrefix(secret, HexSecretPrefix):
		decoded, err := hex.DecodeString(strings.TrimPrefix(secret, HexSecretPrefix))
		if err != nil {
			return nil, fmt.Errorf("secret is not valid hex: %w", err)
		}
		return decoded, nil
	case strings.HasPrefix(secret, Base64SecretPrefix):
		encoded := strings.TrimPrefix(secret, Base64SecretPrefix)
		for _, encoding := range []*base64.Encoding{
			base64.StdEncoding,
			base64.RawStdEncoding,
			base64.URLEncoding,
			base64.RawURLEncoding,
		} {
			if decoded, err := encoding.DecodeString(encoded); err == nil {
				return decoded, nil
			}
		}
		return nil, fmt.Errorf("secret is not valid base64")
	default:
		return []byte(secret), nil
	}
}

// EncodeSecret renders key material in the hex form DecodeSecret reads back.
func EncodeSecret(material []byte) string {
	return HexSecretPrefix + hex.EncodeToString(material)
}

// ParseKeySpec parses "kid:secret,kid:secret" into decoded key material.
func ParseKeySpec(spec string) (map[string][]byte, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("security: key spec is empty")
	}
	keys := map[string][]byte{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kid, secret, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("security: key entry %q must be kid:secret", entry)
		}
		kid = strings.TrimSpace(kid)
		if err := ValidateKeyID(kid); err != nil {
			return nil, err
		}
		if _, exists := keys[kid]; exists {
			return nil, fmt.Errorf("security: duplicate key id %q", kid)
		}
		material, err := DecodeSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("security: key %q: %w", kid, err)
		}
		keys[kid] = material
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("security: key spec is empty")
	}
	return keys, nil
}

// ValidateKeyID accepts [A-Za-z0-9_-]. Key ids travel inside the
// dot-separated token, so they must stay URL safe and dot free.
func ValidateKeyID(kid string) error {
	if kid == "" {
		return fmt.Errorf("security: key id is required")
	}
	for _, r := range kid {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("security: key id %q contains invalid character %q", kid, r)
		}
	}
	return nil
}
