package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const paramsKeyInfo = "storefront/query-params/v1"

// ErrInvalidParams is returned when an encrypted query parameter cannot be opened.
var ErrInvalidParams = errors.New("invalid encrypted params")

// ParamsCipher seals small JSON payloads into URL-safe strings carried as ?data=...
// Links sent by mail (promo code creation, password recovery) use it so the
// recipient cannot forge another email or user id.
type ParamsCipher struct {
	key []byte
}

// NewParamsCipher derives an XChaCha20-Poly1305 key from the configured secret.
func NewParamsCipher(secret string) (*ParamsCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("params secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(paramsKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive params key: %w", err)
	}
	return &ParamsCipher{key: key}, nil
}

// Encrypt marshals params to JSON and seals them.
func (c *ParamsCipher) Encrypt(params any) (string, error) {
	plain, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens data and unmarshals it into dest.
func (c *ParamsCipher) Decrypt(data string, dest any) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return ErrInvalidParams
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return err
	}
	if len(raw) < aead.NonceSize() {
		return ErrInvalidParams
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ErrInvalidParams
	}
	if err := json.Unmarshal(plain, dest); err != nil {
		return ErrInvalidParams
	}
	return nil
}
