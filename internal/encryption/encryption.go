// Package encryption seals provider credentials at rest.
package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix versions the ciphertext format.
const sealedPrefix = "x1:"

// ErrNotSealed is returned by Decrypt for values not produced by Encrypt.
var ErrNotSealed = errors.New("value is not a sealed secret")

// Encryptor provides XChaCha20-Poly1305 encryption. The associated data
// passed to Encrypt must be passed unchanged to Decrypt, which binds a
// secret to the row it was stored under.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a base64-encoded 32-byte key. If
// key is empty, it generates a random key and returns it encoded.
func NewEncryptor(key string) (*Encryptor, string, error) {
	var keyBytes []byte
	if key == "" {
		keyBytes = make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, "", fmt.Errorf("generating encryption key: %w", err)
		}
		key = base64.StdEncoding.EncodeToString(keyBytes)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
		if err != nil {
			return nil, "", fmt.Errorf("decoding encryption key: %w", err)
		}
		keyBytes = decoded
	}

	if len(keyBytes) != chacha20poly1305.KeySize {
		return nil, "", fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(keyBytes))
	}

	aead, err := chacha20poly1305.NewX(keyBytes)
	if err != nil {
		return nil, "", fmt.Errorf("creating cipher: %w", err)
	}
	return &Encryptor{aead: aead}, key, nil
}

// Encrypt seals plaintext and returns a printable ciphertext.
func (e *Encryptor) Encrypt(plaintext, associated string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt with the same associated data.
func (e *Encryptor) Decrypt(encoded, associated string) (string, error) {
	if !strings.HasPrefix(encoded, sealedPrefix) {
		return "", ErrNotSealed
	}
	sealed, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(encoded, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(sealed) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, body := sealed[:e.aead.NonceSize()], sealed[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, body, []byte(associated))
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
