// Package session mints and verifies signed, expiring identity tokens.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Issuer signs tokens with the first key of its ring and verifies with any of them.
type Issuer struct {
	keys []SigningKey
	now  func() time.Time
}

// NewIssuer builds an issuer from one or more secrets. The first secret signs.
func NewIssuer(secrets ...[]byte) (*Issuer, error) {
	if len(secrets) == 0 {
		return nil, errors.New("session: at least one signing key is required")
	}
	keys := make([]SigningKey, 0, len(secrets))
	for i, s := range secrets {
		if len(s) == 0 {
			return nil, fmt.Errorf("session: signing key %d is empty", i)
		}
		keys = append(keys, NewSigningKey(s))
	}
	return &Issuer{keys: keys, now: time.Now}, nil
}

// WithClock replaces the time source; used by tests.
func (s *Issuer) WithClock(now func() time.Time) *Issuer {
	s.now = now
	return s
}

// Mint signs claims with an absolute expiry of now+ttl.
func (s *Issuer) Mint(claims Claims, ttl time.Duration) (string, error) {
	if claims.Purpose == "" {
		return "", errors.New("session: purpose is required")
	}
	now := s.now()
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = utilities.NewKSUID()
	}

	key := s.keys[0]
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = key.Kid
	signed, err := tok.SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose.
func (s *Issuer) Verify(token string, purpose Purpose) (*Claims, error) {
	return s.verify(token, purpose, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
}

// VerifyIgnoringExpiry checks signature and purpose only. The caller must
// bound the token's lifetime by other means.
func (s *Issuer) VerifyIgnoringExpiry(token string, purpose Purpose) (*Claims, error) {
	return s.verify(token, purpose, jwt.WithoutClaimsValidation())
}

func (s *Issuer) verify(token string, purpose Purpose, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := jwt.ParseWithClaims(token, claims, s.keyFor, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Purpose != purpose || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Issuer) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	for _, k := range s.keys {
		if k.Kid == kid {
			return k.Secret, nil
		}
	}
	return nil, errors.New("unknown signing key")
}
