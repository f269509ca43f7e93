package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only error Verify reports. Callers cannot tell a bad
// signature from an expired or malformed token.
var ErrInvalidToken = errors.New("invalid token")

const minKeyBits = 2048

// Claims is the payload carried by every signed token class.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Signer issues and verifies RS256 tokens for a single token class. Each class
// owns its key pair, audience and lifetime.
type Signer struct {
	keys     KeyPair
	lifetime time.Duration
	audience string
	issuer   string
	now      func() time.Time
}

type Option func(*Signer)

func WithIssuer(issuer string) Option {
	return func(s *Signer) { s.issuer = issuer }
}

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func NewSigner(keys KeyPair, audience string, lifetime time.Duration, opts ...Option) (*Signer, error) {
	if keys.Private == nil && keys.Public == nil {
		return nil, errors.New("signer requires a key pair")
	}
	if keys.Public == nil {
		keys.Public = &keys.Private.PublicKey
	}
	if keys.Public.N.BitLen() < minKeyBits {
		return nil, fmt.Errorf("rsa key must be at least %d bits", minKeyBits)
	}
	if keys.Private != nil && keys.Private.PublicKey.N.Cmp(keys.Public.N) != 0 {
		return nil, errors.New("public key does not match private key")
	}
	if lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}
	if audience == "" {
		return nil, errors.New("token audience is required")
	}

	s := &Signer{
		keys:     keys,
		lifetime: lifetime,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Signer) Lifetime() time.Duration {
	return s.lifetime
}

// SharesKeyWith reports whether both signers verify with the same RSA modulus.
func (s *Signer) SharesKeyWith(other *Signer) bool {
	return other != nil && s.keys.Public.N.Cmp(other.keys.Public.N) == 0
}

// Issue stamps claims with issued-at, not-before, expiry, audience and issuer,
// then signs them. Caller-supplied time claims are overwritten.
func (s *Signer) Issue(claims Claims) (string, error) {
	if s.keys.Private == nil {
		return "", errors.New("signer has no private key")
	}
	if claims.Subject == "" {
		return "", errors.New("token subject is required")
	}

	issuedAt := jwt.NewNumericDate(s.now())
	claims.IssuedAt = issuedAt
	claims.NotBefore = issuedAt
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Time.Add(s.lifetime))
	claims.Audience = jwt.ClaimStrings{s.audience}
	claims.Issuer = s.issuer

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.keys.Private)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", t.Header["alg"])
		}
		return s.keys.Public, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateKeyPair creates a fresh RSA key pair, for development and tests.
func GenerateKeyPair(bits int) (KeyPair, error) {
	if bits < minKeyBits {
		bits = minKeyBits
	}

	private, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate rsa key: %w", err)
	}

	return KeyPair{Private: private, Public: &private.PublicKey}, nil
}

// ParseKeyPair decodes PEM-encoded RSA keys. The public key may be omitted
// when a private key is present.
func ParseKeyPair(privatePEM, publicPEM []byte) (KeyPair, error) {
	var keys KeyPair

	if len(privatePEM) > 0 {
		private, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return KeyPair{}, fmt.Errorf("invalid rsa private key: %w", err)
		}
		keys.Private = private
		keys.Public = &private.PublicKey
	}

	if len(publicPEM) > 0 {
		public, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return KeyPair{}, fmt.Errorf("invalid rsa public key: %w", err)
		}
		keys.Public = public
	}

	if keys.Public == nil {
		return KeyPair{}, errors.New("no key material provided")
	}

	return keys, nil
}
