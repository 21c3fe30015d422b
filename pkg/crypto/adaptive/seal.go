package adaptive

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const sealVersion = "v1"

// Seal encrypts plaintext with the preferred cipher and returns
// "v1:<cipher>:<base64 ciphertext>".
func Seal(key, plaintext, additionalData []byte) (string, error) {
	c, err := New(key)
	if err != nil {
		return "", err
	}
	ct, err := c.Encrypt(plaintext, additionalData)
	if err != nil {
		return "", err
	}
	return sealVersion + ":" + string(c.Type()) + ":" + base64.RawStdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal using the cipher named in the sealed value.
func Open(key []byte, sealed string, additionalData []byte) ([]byte, error) {
	version, rest, ok := strings.Cut(sealed, ":")
	if !ok || version != sealVersion {
		return nil, fmt.Errorf("adaptive: unsupported sealed value")
	}
	typ, encoded, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("adaptive: malformed sealed value")
	}
	ct, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("adaptive: malformed sealed value: %w", err)
	}

	c, err := NewWithType(key, CipherType(typ))
	if err != nil {
		return nil, err
	}
	return c.Decrypt(ct, additionalData)
}

// IsSealed reports whether s looks like the output of Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealVersion+":")
}
