// Package secret implements the symmetric cipher that protects connection
// parameters at rest. It encrypts opaque byte payloads with AES-256-GCM and
// has no knowledge of what it encrypts.
//
// Payloads are authenticated: tampering with the ciphertext or decrypting
// with the wrong key fails loudly with a decryption error instead of
// returning corrupted plaintext. Every payload carries the key version it
// was sealed with so a future rotation path can migrate old payloads
// without guessing.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

// KeySize is the required key length in bytes for AES-256.
const KeySize = 32

// EncryptedPayload is the at-rest representation of an encrypted secret:
// ciphertext plus the minimum metadata needed to decrypt it. It is opaque
// outside this package and the vault; no other component parses it.
type EncryptedPayload struct {
	KeyVersion int    `json:"key_version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Cipher performs authenticated symmetric encryption with a process-wide
// key. The key is loaded once at startup from a KeySource and is never
// logged or exposed through any API response. Cipher is safe for concurrent
// use; the key material is read-only after construction.
type Cipher struct {
	aead       cipher.AEAD
	keyVersion int
}

// NewCipher creates a Cipher from 32 bytes of key material and the version
// tag to stamp on payloads it seals.
func NewCipher(key []byte, keyVersion int) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeConfig,
			"cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	if keyVersion < 1 {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConfig, "key version must be at least 1")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig, "failed to construct AES cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig, "failed to construct GCM")
	}

	return &Cipher{aead: aead, keyVersion: keyVersion}, nil
}

// KeyVersion returns the version tag stamped on sealed payloads.
func (c *Cipher) KeyVersion() int {
	return c.keyVersion
}

// Encrypt seals plaintext under a fresh random nonce. Identical plaintexts
// produce different ciphertexts; determinism is the vault's concern, not
// the cipher's.
func (c *Cipher) Encrypt(plaintext []byte) (EncryptedPayload, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedPayload{}, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal, "failed to generate nonce")
	}

	return EncryptedPayload{
		KeyVersion: c.keyVersion,
		Nonce:      nonce,
		Ciphertext: c.aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a sealed payload. A key-version mismatch, a truncated
// nonce, or a failed integrity check all return a decryption error; the
// last indicates tampering or key rotation without migration and must
// never be silently swallowed by callers.
func (c *Cipher) Decrypt(payload EncryptedPayload) ([]byte, error) {
	if payload.KeyVersion != c.keyVersion {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeDecryption,
			"payload sealed with key version %d, cipher holds version %d",
			payload.KeyVersion, c.keyVersion)
	}
	if len(payload.Nonce) != c.aead.NonceSize() {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeDecryption, "payload nonce has invalid length")
	}

	plaintext, err := c.aead.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeDecryption,
			"payload failed integrity check")
	}

	return plaintext, nil
}
