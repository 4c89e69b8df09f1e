package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Caller is an authenticated gateway client.
type Caller struct {
	ID string
}

// Keyring verifies gateway API keys. Keys are configured as "id:secret"
// pairs; only the sha256 hash of the secret is retained after load.
type Keyring struct {
	hashes map[string]string // key id -> hex sha256 of secret
}

// NewKeyring parses "id:secret" pairs. Malformed pairs are rejected.
func NewKeyring(pairs []string) (*Keyring, error) {
	k := &Keyring{hashes: make(map[string]string, len(pairs))}
	for _, pair := range pairs {
		id, secret, ok := strings.Cut(pair, ":")
		id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed api key pair (want id:secret)")
		}
		k.hashes[id] = HashSecret(secret)
	}
	return k, nil
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool { return len(k.hashes) == 0 }

// Verify checks an "id:secret" credential in constant time.
func (k *Keyring) Verify(apiKey string) (*Caller, bool) {
	id, secret, ok := strings.Cut(apiKey, ":")
	if !ok {
		return nil, false
	}
	stored, ok := k.hashes[id]
	if !ok {
		return nil, false
	}
	if !hmac.Equal([]byte(stored), []byte(HashSecret(secret))) {
		return nil, false
	}
	return &Caller{ID: id}, true
}

// HashSecret returns the hex-encoded SHA-256 hash of a key secret.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// GenerateKey mints a new key pair with the "amztec_" id prefix and a
// 32-character URL-safe random secret. Returns id and plaintext secret.
func GenerateKey() (id, secret string, err error) {
	idBytes := make([]byte, 6)
	secretBytes := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	id = "amztec_" + hex.EncodeToString(idBytes)
	secret = base64.RawURLEncoding.EncodeToString(secretBytes)
	return id, secret, nil
}
