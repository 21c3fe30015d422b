package token

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(key, Prefix) {
		t.Errorf("key %q lacks prefix %q", key, Prefix)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(key, Prefix))
	if err != nil {
		t.Fatalf("key body is not base64url: %v", err)
	}
	if len(raw) != DefaultLength {
		t.Errorf("random length = %d, want %d", len(raw), DefaultLength)
	}

	other, _ := Generate()
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestGenerateWithLength(t *testing.T) {
	if _, err := GenerateWithLength(MinLength - 1); err == nil {
		t.Error("short length should fail")
	}
	key, err := GenerateWithLength(MinLength)
	if err != nil {
		t.Fatalf("GenerateWithLength() error = %v", err)
	}
	if got := len(strings.TrimPrefix(key, Prefix)); got != base64.RawURLEncoding.EncodedLen(MinLength) {
		t.Errorf("encoded length = %d", got)
	}
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(randomLen)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}
	if len(b) != randomLen {
		t.Errorf("len = %d", len(b))
	}
}

const randomLen = 32

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("smk_example")
	if len(fp) != 12 {
		t.Errorf("len(Fingerprint) = %d, want 12", len(fp))
	}
	if fp != Fingerprint("smk_example") {
		t.Error("Fingerprint is not deterministic")
	}
	if fp == Fingerprint("smk_other") {
		t.Error("different keys share a fingerprint")
	}
	if strings.Contains(fp, "example") {
		t.Error("fingerprint leaks the key")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		got, want string
		equal     bool
	}{
		{"secret", "secret", true},
		{"secret", "Secret", false},
		{"secret", "secret-longer", false},
		{"", "", false},
		{"", "secret", false},
	}
	for _, tt := range tests {
		if got := Equal(tt.got, tt.want); got != tt.equal {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.got, tt.want, got, tt.equal)
		}
	}
}
