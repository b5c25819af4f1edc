package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var newGCM = cipher.NewGCM

var errKeyLength = errors.New("CARBONN_SECRETS_KEY must be 32 bytes or base64-encoded 32 bytes")

// Box seals integration tokens at rest with a single AES-256-GCM key.
type Box struct {
	key []byte
}

func NewBox(rawKey string) (*Box, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	return &Box{key: key}, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	return Encrypt(b.key, plaintext)
}

// SealOptional leaves empty values empty so nullable columns stay null.
func (b *Box) SealOptional(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return b.Seal(plaintext)
}

func (b *Box) Open(encoded string) (string, error) {
	return Decrypt(b.key, encoded)
}

func ParseKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("CARBONN_SECRETS_KEY is required")
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errKeyLength
	}
	if len(decoded) != 32 {
		return nil, errKeyLength
	}
	return decoded, nil
}

func Encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	combined := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

func Decrypt(key []byte, encoded string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(block)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("invalid encrypted secret")
	}
	nonce := data[:gcm.NonceSize()]
	ciphertext := data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
