package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// encPrefix marks a config value encrypted with EncryptValue.
const encPrefix = "enc:"

// decryptSecrets replaces every "enc:" value in cfg with its plaintext.
// Secrets are the platform ticket and the dev server's ticket table keys.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Platform.Ticket, encPrefix) {
		plain, err := DecryptValue(strings.TrimPrefix(cfg.Platform.Ticket, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("platform ticket: %w", err)
		}
		cfg.Platform.Ticket = plain
	}

	if len(cfg.DevServer.Tickets) == 0 {
		return nil
	}
	tickets := make(map[string]string, len(cfg.DevServer.Tickets))
	for ticket, name := range cfg.DevServer.Tickets {
		if strings.HasPrefix(ticket, encPrefix) {
			plain, err := DecryptValue(strings.TrimPrefix(ticket, encPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("devserver ticket for %s: %w", name, err)
			}
			ticket = plain
		}
		tickets[ticket] = name
	}
	cfg.DevServer.Tickets = tickets
	return nil
}

// IsEncrypted reports whether v still carries the "enc:" marker.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, encPrefix)
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result has the form hex(salt):hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
