package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

const (
	Version = "v1"

	// MaxLength bounds both the tokens Encode issues and the input Decode
	// accepts, so every issued token decodes.
	MaxLength = 2048

	separator = "."
	tagSize   = 32
)

var encoding = base64.RawURLEncoding.Strict()

// Signer produces and checks integrity tags. *security.Keyring satisfies it.
type Signer interface {
	ActiveKeyID() string
	Sign(keyID string, message []byte) ([]byte, error)
	Verify(keyID string, message []byte, tag []byte) bool
}

// Claims is the decoded content of a valid token.
type Claims struct {
	Identifier core.Identifier
	IssuedAt   time.Time
	KeyID      string
}

type payload struct {
	ID  string `json:"id"`
	IAT int64  `json:"iat"`
}

// Codec turns identifiers into opaque URL-safe tokens and back. A token has
// the form v1.<kid>.<payload>.<tag> where payload is the base64url JSON body
// and tag is an HMAC over everything before it.
type Codec struct {
	signer Signer
	clock  core.Clock
	expiry time.Duration
}

type Option func(*Codec)

func WithClock(clock core.Clock) Option {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithExpiryWindow rejects tokens older than window. Zero disables expiry.
func WithExpiryWindow(window time.Duration) Option {
	return func(c *Codec) {
		if window > 0 {
			c.expiry = window
		}
	}
}

func NewCodec(signer Signer, opts ...Option) (*Codec, error) {
	if signer == nil {
		return nil, fmt.Errorf("token: signer is required")
	}
	codec := &Codec{signer: signer, clock: core.SystemClock{}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(codec)
	}
	return codec, nil
}

func (c *Codec) ExpiryWindow() time.Duration {
	if c == nil {
		return 0
	}
	return c.expiry
}

// Encode issues a token for id stamped with the current clock time.
func (c *Codec) Encode(id core.Identifier) (string, error) {
	if c == nil {
		return "", fmt.Errorf("token: codec is not configured")
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(payload{ID: id.String(), IAT: c.clock.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("token: encode payload: %w", err)
	}
	encodedBody := encoding.EncodeToString(body)

	keyID := c.signer.ActiveKeyID()
	if keyID == "" {
		return "", fmt.Errorf("token: signer has no active key")
	}
	input := signingInput(keyID, encodedBody)
	tag, err := c.signer.Sign(keyID, []byte(input))
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	token := input + separator + encoding.EncodeToString(tag)
	if len(token) > MaxLength {
		return "", core.NewError(
			fmt.Sprintf("token: identifier too long, token would be %d bytes (max %d)", len(token), MaxLength),
			goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	return token, nil
}

// Decode returns the identifier carried by raw. Every failure is a
// *DecodeError; malformed input never panics.
func (c *Codec) Decode(raw string) (core.Identifier, error) {
	claims, err := c.DecodeClaims(raw)
	if err != nil {
		return "", err
	}
	return claims.Identifier, nil
}

func (c *Codec) DecodeClaims(raw string) (Claims, error) {
	if c == nil {
		return Claims{}, malformed("codec is not configured")
	}
	if raw == "" {
		return Claims{}, malformed("token is empty")
	}
	if len(raw) > MaxLength {
		return Claims{}, malformed("token exceeds maximum length")
	}

	parts := strings.Split(raw, separator)
	if len(parts) != 4 {
		return Claims{}, malformed("unexpected segment count")
	}
	version, keyID, encodedBody, encodedTag := parts[0], parts[1], parts[2], parts[3]
	if version != Version {
		return Claims{}, malformed("unsupported version")
	}
	if keyID == "" || encodedBody == "" || encodedTag == "" {
		return Claims{}, malformed("empty segment")
	}

	tag, err := encoding.DecodeString(encodedTag)
	if err != nil {
		return Claims{}, malformed("tag is not base64url")
	}
	if len(tag) != tagSize {
		return Claims{}, malformed("tag has unexpected size")
	}
	if !c.signer.Verify(keyID, []byte(signingInput(keyID, encodedBody)), tag) {
		return Claims{}, mismatch("tag does not match")
	}

	body, err := encoding.DecodeString(encodedBody)
	if err != nil {
		return Claims{}, malformed("payload is not base64url")
	}
	var decoded payload
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&decoded); err != nil {
		return Claims{}, malformed("payload is not valid json")
	}
	id := core.Identifier(decoded.ID)
	if id.Validate() != nil {
		return Claims{}, malformed("identifier is empty or invalid")
	}
	if decoded.IAT <= 0 {
		return Claims{}, malformed("issued at is missing")
	}

	issuedAt := time.Unix(decoded.IAT, 0).UTC()
	if c.expiry > 0 && c.clock.Now().Sub(issuedAt) > c.expiry {
		return Claims{}, &DecodeError{Kind: FailureExpired, Reason: "token is older than the expiry window"}
	}
	return Claims{Identifier: id, IssuedAt: issuedAt, KeyID: keyID}, nil
}

func signingInput(keyID string, encodedBody string) string {
	return Version + separator + keyID + separator + encodedBody
}
