package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// Prefix marks generated API keys.
	Prefix = "smk_"

	// DefaultLength is the number of random bytes in a generated key.
	DefaultLength = 32

	// MinLength is the smallest accepted random length.
	MinLength = 16
)

// Generate returns a new API key of DefaultLength random bytes.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns "smk_" followed by length random bytes in
// unpadded base64url.
func GenerateWithLength(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("token: length %d is below the minimum of %d", length, MinLength)
	}
	b, err := RandomBytes(length)
	if err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("token: read random: %w", err)
	}
	return b, nil
}

// Fingerprint identifies a key without revealing it: the first 12 hex
// characters of its SHA-256.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

// Equal reports whether got matches want without leaking the position of
// the first difference or the length of want. An empty got never matches.
func Equal(got, want string) bool {
	if got == "" {
		return false
	}
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
