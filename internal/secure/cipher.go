// Package secure encrypts bank account numbers at rest using Fernet tokens.
package secure

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrDecrypt indicates a stored token could not be verified with any configured key.
var ErrDecrypt = errors.New("failed to decrypt value")

// Cipher encrypts with the first key and decrypts with any of them, so keys can be rotated
// by prepending a new one.
type Cipher struct {
	keys []*fernet.Key
}

// NewCipher builds a Cipher from one or more base64 encoded Fernet keys.
func NewCipher(encodedKeys ...string) (*Cipher, error) {
	if len(encodedKeys) == 0 {
		return nil, errors.New("at least one key is required")
	}
	keys, err := fernet.DecodeKeys(encodedKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fernet keys: %w", err)
	}
	return &Cipher{keys: keys}, nil
}

// GenerateKey returns a new random base64 encoded key.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("failed to generate fernet key: %w", err)
	}
	return k.Encode(), nil
}

// Encrypt returns a token for plaintext. Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	return string(tok), nil
}

// Decrypt returns the plaintext of token. Empty input stays empty.
func (c *Cipher) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, c.keys)
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}
