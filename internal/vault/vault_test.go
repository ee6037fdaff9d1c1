package vault

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	for _, plaintext := range []string{"", "x", "sk-live-abc123", strings.Repeat("secret", 100)} {
		blob, err := v.Encrypt([]byte(plaintext))
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		got, err := v.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plaintext, err)
		}
		if string(got) != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestBlobWireFormat(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt([]byte("credential"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(blob.IV) != 24 {
		t.Errorf("IV hex length = %d, want 24", len(blob.IV))
	}
	if len(blob.AuthTag) != 32 {
		t.Errorf("AuthTag hex length = %d, want 32", len(blob.AuthTag))
	}
	for _, part := range []string{blob.IV, blob.AuthTag, blob.Ciphertext} {
		if part != strings.ToLower(part) {
			t.Errorf("blob part %q is not lowercase hex", part)
		}
		if _, err := hex.DecodeString(part); err != nil {
			t.Errorf("blob part %q is not hex: %v", part, err)
		}
	}
}

func TestFreshIVPerEncryption(t *testing.T) {
	v := newTestVault(t)
	a, _ := v.Encrypt([]byte("same"))
	b, _ := v.Encrypt([]byte("same"))
	if a.IV == b.IV {
		t.Error("two encryptions reused the same IV")
	}
	if a.Ciphertext == b.Ciphertext {
		t.Error("two encryptions produced identical ciphertext")
	}
}

func TestTamperedBlobFailsWithCredentialError(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt([]byte("super secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'f' {
			b[0] = '0'
		} else {
			b[0] = 'f'
		}
		return string(b)
	}

	cases := map[string]*models.EncryptedBlob{
		"iv":         {IV: flip(blob.IV), AuthTag: blob.AuthTag, Ciphertext: blob.Ciphertext},
		"authTag":    {IV: blob.IV, AuthTag: flip(blob.AuthTag), Ciphertext: blob.Ciphertext},
		"ciphertext": {IV: blob.IV, AuthTag: blob.AuthTag, Ciphertext: flip(blob.Ciphertext)},
		"bad hex":    {IV: "zz", AuthTag: blob.AuthTag, Ciphertext: blob.Ciphertext},
		"nil":        nil,
	}
	for name, mutated := range cases {
		_, err := v.Decrypt(mutated)
		if err == nil {
			t.Errorf("%s: decryption succeeded on tampered blob", name)
			continue
		}
		if kiloerr.CodeOf(err) != kiloerr.CodeCredential {
			t.Errorf("%s: code = %s, want credential", name, kiloerr.CodeOf(err))
		}
	}
}

func TestBadMasterKey(t *testing.T) {
	for _, key := range []string{"", "abcd", strings.Repeat("zz", 32)} {
		if _, err := New(key); err == nil {
			t.Errorf("New(%q): expected error", key)
		}
	}
}

func TestGlobalLifecycle(t *testing.T) {
	if _, err := Init(testKey); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Default() == nil {
		t.Fatal("Default() nil after Init")
	}
	Shutdown()
	if Default() != nil {
		t.Fatal("Default() non-nil after Shutdown")
	}
	if _, err := Init(testKey); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	Shutdown()
}
