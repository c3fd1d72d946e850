package session

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose separates general session tokens from reset-authorization tokens;
// a token minted for one purpose never verifies for another.
type Purpose string

const (
	PurposeSession            Purpose = "session"
	PurposeResetAuthorization Purpose = "reset-authorization"
)

// Claims is the sanitized identity projection embedded in a token.
type Claims struct {
	UserID     string  `json:"uid"`
	IsAdmin    bool    `json:"adm"`
	IsVerified bool    `json:"vfd"`
	Purpose    Purpose `json:"pur"`
	// Epoch mirrors the user's version at mint time.
	Epoch int64 `json:"ver"`
	// Secret carries the plaintext reset challenge inside reset-authorization tokens.
	Secret string `json:"sec,omitempty"`
	jwt.RegisteredClaims
}

// SigningKey is one HMAC key of the key ring.
type SigningKey struct {
	Kid    string
	Secret []byte
}

// NewSigningKey derives the kid from the SHA-256 of the secret.
func NewSigningKey(secret []byte) SigningKey {
	h := sha256.Sum256(secret)
	return SigningKey{Kid: base64.RawURLEncoding.EncodeToString(h[:8]), Secret: secret}
}
