package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	otpDigits        = 6
	resetSecretBytes = 32
)

// NewOTP returns a uniformly random numeric code of six digits.
func NewOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// NewResetSecret returns 32 random bytes encoded as unpadded base64url.
func NewResetSecret() (string, error) {
	b := make([]byte, resetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
