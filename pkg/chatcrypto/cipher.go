// Package chatcrypto encrypts chat messages at rest.
//
// Each message is sealed with XChaCha20-Poly1305 under a fresh random nonce.
// The nonce is stored hex encoded in the iv column next to the hex ciphertext.
package chatcrypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// PlaceholderUnavailable replaces messages stored without content or iv.
	PlaceholderUnavailable = "[Encrypted message unavailable]"
	// PlaceholderUndecryptable replaces messages that fail authentication.
	PlaceholderUndecryptable = "[Could not decrypt message]"
)

var (
	ErrMissingCiphertext = errors.New("ciphertext or iv missing")
	ErrInvalidKey        = fmt.Errorf("key must be %d bytes", chacha20poly1305.KeySize)
)

// Sealed is the stored form of one message.
type Sealed struct {
	Content string
	IV      string
}

// Cipher seals and opens chat messages.
type Cipher struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// New builds a Cipher from a 32 byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init xchacha20poly1305: %w", err)
	}
	return &Cipher{aead: aead, nonce: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh nonce. The complaint id is bound as
// associated data so a row copied to another complaint fails to open.
func (c *Cipher) Encrypt(plaintext string, associated []byte) (Sealed, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.nonce, nonce); err != nil {
		return Sealed{}, fmt.Errorf("read nonce: %w", err)
	}
	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), associated)
	return Sealed{
		Content: hex.EncodeToString(ciphertext),
		IV:      hex.EncodeToString(nonce),
	}, nil
}

// Decrypt opens a sealed message.
func (c *Cipher) Decrypt(sealed Sealed, associated []byte) (string, error) {
	if sealed.Content == "" || sealed.IV == "" {
		return "", ErrMissingCiphertext
	}
	nonce, err := hex.DecodeString(sealed.IV)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("iv must be %d bytes, got %d", c.aead.NonceSize(), len(nonce))
	}
	ciphertext, err := hex.DecodeString(sealed.Content)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return "", fmt.Errorf("open message: %w", err)
	}
	return string(plaintext), nil
}

// DecryptOrPlaceholder never fails; unreadable messages degrade to a placeholder.
func (c *Cipher) DecryptOrPlaceholder(sealed Sealed, associated []byte) (string, bool) {
	plaintext, err := c.Decrypt(sealed, associated)
	switch {
	case err == nil:
		return plaintext, true
	case errors.Is(err, ErrMissingCiphertext):
		return PlaceholderUnavailable, false
	default:
		return PlaceholderUndecryptable, false
	}
}
