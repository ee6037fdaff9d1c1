// Package vault encrypts small credential blobs with AES-256-GCM.
//
// The master key comes from a single environment variable as 64 hex
// characters. Every encryption draws a fresh 12-byte IV; output parts are
// lowercase hex. Any decryption failure, including tag mismatch, surfaces as
// a credential error so callers cannot distinguish tampering from key
// rotation. Plaintext never appears in logs, prompts, or error messages.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

const (
	ivSize  = 12
	tagSize = 16
	keySize = 32
)

// Vault performs AEAD encryption with a process-wide master key.
type Vault struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

var (
	globalMu sync.Mutex
	global   *Vault
)

// Init constructs the process-wide vault from a 64-character hex key.
// It tolerates init → shutdown → re-init for tests.
func Init(masterKeyHex string) (*Vault, error) {
	v, err := New(masterKeyHex)
	if err != nil {
		return nil, err
	}
	globalMu.Lock()
	global = v
	globalMu.Unlock()
	return v, nil
}

// Shutdown drops the process-wide vault.
func Shutdown() {
	globalMu.Lock()
	global = nil
	globalMu.Unlock()
}

// Default returns the process-wide vault, or nil before Init.
func Default() *Vault {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// New constructs a vault from a 64-character hex master key.
func New(masterKeyHex string) (*Vault, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, kiloerr.New(kiloerr.CodeCredential, "master key is not valid hex")
	}
	if len(key) != keySize {
		return nil, kiloerr.Newf(kiloerr.CodeCredential, "master key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeCredential, "initialize cipher")
	}
	aead, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeCredential, "initialize GCM")
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV. The returned blob carries
// iv, authTag, and ciphertext as lowercase hex.
func (v *Vault) Encrypt(plaintext []byte) (*models.EncryptedBlob, error) {
	v.mu.RLock()
	aead := v.aead
	v.mu.RUnlock()
	if aead == nil {
		return nil, kiloerr.New(kiloerr.CodeCredential, "vault not initialized")
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeCredential, "generate IV")
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the tag after the ciphertext.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return &models.EncryptedBlob{
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
		Ciphertext: hex.EncodeToString(ct),
	}, nil
}

// Decrypt opens a blob. Every failure mode, malformed hex, wrong lengths, or
// tag mismatch, reports the same credential error.
func (v *Vault) Decrypt(blob *models.EncryptedBlob) ([]byte, error) {
	v.mu.RLock()
	aead := v.aead
	v.mu.RUnlock()
	if aead == nil || blob == nil {
		return nil, decryptError()
	}

	iv, err := hex.DecodeString(blob.IV)
	if err != nil || len(iv) != ivSize {
		return nil, decryptError()
	}
	tag, err := hex.DecodeString(blob.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, decryptError()
	}
	ct, err := hex.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, decryptError()
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, decryptError()
	}
	return plaintext, nil
}

func decryptError() error {
	return kiloerr.New(kiloerr.CodeCredential, "credential decryption failed")
}
