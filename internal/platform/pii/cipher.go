// Package pii provides deterministic field-level encryption for personally
// identifiable information. Ciphertexts are stable for a given key and
// plaintext, so encrypted columns support equality comparison and unique
// indexes, at the documented cost of revealing value equality. Substring and
// range queries over encrypted columns are not possible; callers that need
// them must decrypt candidate rows and compare in application code.
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the required master key length in bytes.
const KeySize = 32

// Cipher encrypts and decrypts PII field values with AES-256-GCM using a
// synthetic nonce derived from the plaintext (SIV construction). The master
// key is split with HKDF into independent encryption, nonce, and hash subkeys.
type Cipher struct {
	aead     cipher.AEAD
	nonceKey []byte
	hashKey  []byte
}

// NewCipher creates a Cipher from a 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("pii: master key must be %d bytes, got %d", KeySize, len(masterKey))
	}

	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("clinicore/pii/v1"))
	encKey := make([]byte, 32)
	nonceKey := make([]byte, 32)
	hashKey := make([]byte, 32)
	for _, k := range [][]byte{encKey, nonceKey, hashKey} {
		if _, err := io.ReadFull(kdf, k); err != nil {
			return nil, fmt.Errorf("pii: derive subkeys: %w", err)
		}
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("pii: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pii: create GCM: %w", err)
	}

	return &Cipher{aead: aead, nonceKey: nonceKey, hashKey: hashKey}, nil
}

// NewCipherFromHex creates a Cipher from a 64-character hex key string.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("pii: key is not valid hex: %w", err)
	}
	return NewCipher(key)
}

// Encrypt returns the base64 ciphertext of plaintext with the synthetic nonce
// prepended. Identical plaintexts produce identical ciphertexts.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := c.syntheticNonce([]byte(plaintext))
	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails closed: any decode, length, or
// authentication failure returns an error so corrupted or foreign-key
// ciphertext is never surfaced as if it were valid data.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("pii decrypt: base64 decode: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("pii decrypt: ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("pii decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Hash returns a keyed equality hash (HMAC-SHA256, hex) of value. Hashes are
// stable per key, which makes them safe to place behind a unique index as the
// concurrent-duplicate backstop for encrypted natural keys.
func (c *Cipher) Hash(value string) string {
	mac := hmac.New(sha256.New, c.hashKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// syntheticNonce derives the GCM nonce from the plaintext under a dedicated
// HMAC subkey. Equal plaintexts map to equal nonces, which is what makes the
// scheme deterministic; the nonce key never leaves the process.
func (c *Cipher) syntheticNonce(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write(plaintext)
	sum := mac.Sum(nil)
	return sum[:c.aead.NonceSize()]
}
