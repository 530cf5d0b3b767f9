package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// credentialVersion prefixes every sealed credential so the format can change later.
const credentialVersion byte = 1

var (
	// ErrNoCredential is returned when an account has no stored password.
	ErrNoCredential = errors.New("no stored credential")
	// ErrMalformedCredential is returned for ciphertexts that were not produced by this package.
	ErrMalformedCredential = errors.New("malformed credential")
)

// Encryptor seals account passwords with AES-256-GCM. The account email is bound as
// additional data, so a ciphertext copied onto another account fails to open.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a base64-encoded 32-byte key.
func NewEncryptor(base64Key string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// EncryptPassword seals the IMAP password of the account with the given email.
// Output layout: [version][nonce][ciphertext+tag].
func (e *Encryptor) EncryptPassword(accountEmail, password string) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(password)+e.aead.Overhead())
	out[0] = credentialVersion

	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(out, out[1:], []byte(password), []byte(accountEmail)), nil
}

// DecryptPassword opens a password sealed by EncryptPassword for the same account email.
func (e *Encryptor) DecryptPassword(accountEmail string, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", ErrNoCredential
	}

	nonceSize := e.aead.NonceSize()
	if len(sealed) < 1+nonceSize+e.aead.Overhead() || sealed[0] != credentialVersion {
		return "", ErrMalformedCredential
	}

	nonce, ciphertext := sealed[1:1+nonceSize], sealed[1+nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, []byte(accountEmail))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return string(plaintext), nil
}
