package snapshot

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/pkg/crypto/adaptive"
	"github.com/yndnr/stablemem/pkg/token"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak = errors.New("snapshot: archive passphrase too weak (minimum 8 characters)")
	ErrPassphraseNeeded  = errors.New("snapshot: archive is encrypted and no passphrase is configured")
	ErrDecryptionFailed  = errors.New("snapshot: archive decryption failed, wrong passphrase or corrupted file")
)

const (
	// MinPassphraseLength is the minimum archive passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the argon2 salt stored in every encrypted archive.
	SaltLength = 16

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32

	subkeyInfo = "stablemem archive v1 "
)

// sealedMagic starts every encrypted archive file. Plain archives start
// with the envelope magic instead.
var sealedMagic = []byte("SMARC\x00\x00\x01")

// ValidatePassphrase checks an archive passphrase. Empty disables
// encryption.
func ValidatePassphrase(passphrase []byte) error {
	if len(passphrase) > 0 && len(passphrase) < MinPassphraseLength {
		return ErrPassphraseTooWeak
	}
	return nil
}

// DeriveKey derives a 32-byte master key from a passphrase with Argon2id.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("snapshot: salt must be %d bytes", SaltLength)
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
}

// DeriveSubkey derives the key of one cipher type from a master key with
// HKDF, so the same passphrase never keys two algorithms alike.
func DeriveSubkey(master []byte, typ adaptive.CipherType) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(subkeyInfo+string(typ)))
	key := make([]byte, adaptive.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return key, nil
}

// ZeroKey overwrites key material.
func ZeroKey(key []byte) {
	clear(key)
}

// IsSealed reports whether data is an encrypted archive.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealedMagic)
}

// sealer encrypts and decrypts archive files. The master key of the salt
// used for writing is derived once and cached.
type sealer struct {
	passphrase []byte
	salt       []byte
	master     []byte
}

func newSealer(passphrase []byte) (*sealer, error) {
	if err := ValidatePassphrase(passphrase); err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, nil
	}
	salt, err := token.RandomBytes(SaltLength)
	if err != nil {
		return nil, fmt.Errorf("snapshot: salt: %w", err)
	}
	master, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return &sealer{
		passphrase: bytes.Clone(passphrase),
		salt:       salt,
		master:     master,
	}, nil
}

// Layout: magic | cipher name length (1) | cipher name | salt | nonce+ciphertext.
// Everything before the ciphertext is authenticated.
func (s *sealer) seal(envelope []byte) ([]byte, error) {
	typ := adaptive.Preferred()
	c, err := s.cipher(s.master, typ)
	if err != nil {
		return nil, err
	}

	head := make([]byte, 0, len(sealedMagic)+1+len(typ)+SaltLength)
	head = append(head, sealedMagic...)
	head = append(head, byte(len(typ)))
	head = append(head, typ...)
	head = append(head, s.salt...)

	ct, err := c.Encrypt(envelope, head)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encrypt archive: %w", err)
	}
	return append(head, ct...), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	rest := data[len(sealedMagic):]
	if len(rest) < 1 {
		return nil, domain.ErrInvalidEnvelope.WithDetails("truncated archive header")
	}
	n := int(rest[0])
	if len(rest) < 1+n+SaltLength {
		return nil, domain.ErrInvalidEnvelope.WithDetails("truncated archive header")
	}
	typ := adaptive.CipherType(rest[1 : 1+n])
	salt := rest[1+n : 1+n+SaltLength]
	headLen := len(sealedMagic) + 1 + n + SaltLength

	master := s.master
	if !bytes.Equal(salt, s.salt) {
		var err error
		if master, err = DeriveKey(s.passphrase, salt); err != nil {
			return nil, err
		}
		defer ZeroKey(master)
	}

	c, err := s.cipher(master, typ)
	if err != nil {
		return nil, err
	}
	plain, err := c.Decrypt(data[headLen:], data[:headLen])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func (s *sealer) cipher(master []byte, typ adaptive.CipherType) (adaptive.Cipher, error) {
	key, err := DeriveSubkey(master, typ)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(key)
	return adaptive.NewWithType(key, typ)
}

func (s *sealer) close() {
	if s == nil {
		return
	}
	ZeroKey(s.master)
	ZeroKey(s.passphrase)
}
