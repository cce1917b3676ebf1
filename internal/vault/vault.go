// Package vault seals individual sensitive profile fields with AES-GCM
// before they are stored. It is field-level protection layered on a database
// that is already trusted and access controlled, not a replacement for it.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// prefix marks sealed values so unsealed rows written without a key still read back.
const prefix = "enc:"

var (
	ErrTampered   = errors.New("decryption failed (wrong key or tampered data)")
	ErrInvalidKey = errors.New("encryption key must be 32 bytes, hex or base64 encoded")
)

// Sealer encrypts and decrypts field values. The zero value and a Sealer
// built from an empty secret pass values through unchanged.
type Sealer struct {
	gcm cipher.AEAD
}

// New builds a Sealer from a 32-byte AES-256 key given as 64 hex characters
// or standard base64. An empty key disables sealing.
func New(encodedKey string) (*Sealer, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return &Sealer{}, nil
	}
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Enabled reports whether a key is configured.
func (s *Sealer) Enabled() bool {
	return s != nil && s.gcm != nil
}

// Encrypt returns the sealed form of plaintext.
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	if !s.Enabled() {
		return plaintext, nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// Prepend the nonce so Decrypt can recover it
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Values without the sealed prefix are returned as is.
func (s *Sealer) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", fmt.Errorf("sealed value but no encryption key configured")
	}
	ciphertext, err := hex.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", err
	}
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}

// Seal encrypts an optional field.
func (s *Sealer) Seal(v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	out, err := s.Encrypt(*v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Open decrypts an optional field.
func (s *Sealer) Open(v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	out, err := s.Decrypt(*v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, ErrInvalidKey
}
