package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// encPrefix marks encrypted values in the credentials file.
const encPrefix = "enc:"

// scrypt parameters for deriving the AES key from the master passphrase.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// keySalt namespaces the derivation; changing it invalidates every ciphertext.
var keySalt = []byte("amztec-credentials-v1")

// Cipher handles AES-256-GCM encryption of credential fields at rest.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from the master passphrase. Returns nil
// when the passphrase is empty (encryption disabled).
func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, nil
	}

	key, err := scrypt.Key([]byte(masterKey), keySalt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt returns the base64-encoded ciphertext with a prepended nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", errors.New("encryption requested but no master key configured")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if c == nil {
		return "", errors.New("encrypted value found but no master key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
