// Package vault encrypts backend credentials at rest.
//
// Credentials are arbitrary key-value maps (username/password, API keys).
// They are serialized to JSON and sealed with XChaCha20-Poly1305 under a
// process-wide key loaded at startup. The output is a base64 envelope of
// nonce || ciphertext. Decryption of anything this vault did not produce
// (wrong key, truncation, tampering) fails with ErrDecrypt — there is no
// partial recovery.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when a ciphertext cannot be authenticated or opened.
var ErrDecrypt = errors.New("vault: decryption failed")

// Vault seals and opens credential maps with a single symmetric key.
type Vault struct {
	key []byte
}

// New creates a Vault from a base64-encoded 32-byte key.
func New(encodedKey string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("vault: key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Vault{key: key}, nil
}

// Encrypt serializes the credential map and seals it.
func (v *Vault) Encrypt(creds map[string]string) (string, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("Encrypt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("Encrypt: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("Encrypt: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed envelope back into a credential map.
// Returns ErrDecrypt for anything that does not authenticate.
func (v *Vault) Decrypt(envelope string) (map[string]string, error) {
	sealed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, ErrDecrypt
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("Decrypt: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, ErrDecrypt
	}
	return creds, nil
}
