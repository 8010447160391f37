package sfapi

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCEPair is a code verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a verifier from 32 random bytes, base64url encoded
// without padding, and derives its challenge.
func NewPKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()

	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// ValidatePKCEChallenge reports whether challenge is the S256 challenge of
// verifier.
func ValidatePKCEChallenge(challenge, verifier string) bool {
	h := sha256.New()
	h.Write([]byte(verifier))
	calculated := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(challenge), []byte(calculated)) == 1
}

// NewRandomID returns 128 bits of randomness as lowercase hex.
func NewRandomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random id: %w", err)
	}

	return hex.EncodeToString(b), nil
}
