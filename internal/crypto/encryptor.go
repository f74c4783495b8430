// Package crypto implements at-rest encryption for Credential secret bytes
// and SECRET-scoped Variable values: AES-256-GCM with a key derived from a
// passphrase via PBKDF2-SHA256, built on golang.org/x/crypto.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen           = 32      // AES-256
	pbkdf2Iterations = 100_000
)

// Encryptor seals/opens secret bytes with AES-256-GCM under a key derived
// from a passphrase and salt. One Encryptor is shared process-wide by the
// storage layer (internal/storage/sqlstore); it holds no per-secret state.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives a 256-bit key from passphrase/salt via PBKDF2.
func NewEncryptor(passphrase, salt string) *Encryptor {
	if salt == "" {
		salt = "nervemind-default-salt"
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, keyLen, sha256.New)
	return &Encryptor{key: key}
}

// Seal encrypts plaintext, prefixing the ciphertext with a freshly
// generated nonce (the nonce need not be secret, only unique per message).
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal. Returns an error (never a
// panic) on truncated or tampered input.
func (e *Encryptor) Open(ciphertext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
