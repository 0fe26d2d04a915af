package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	payloadPrefix = "v2:"
	keyInfo       = "codehub payload key v2"
)

var (
	ErrEncryption  = errors.New("encryption failed")
	ErrDecryption  = errors.New("decryption failed")
	ErrEmptySecret = errors.New("payload secret is empty")
)

// Codec encrypts product identifiers embedded in QR codes.
// New payloads are sealed with XChaCha20-Poly1305 and a random nonce;
// legacy CBC payloads can still be read when a passphrase is configured.
type Codec struct {
	aead             cipher.AEAD
	legacyPassphrase []byte
}

// NewCodec derives the payload key from secret with HKDF-SHA256.
// legacyPassphrase may be empty, which disables the legacy read path.
func NewCodec(secret, legacyPassphrase string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	c := &Codec{aead: aead}
	if legacyPassphrase != "" {
		c.legacyPassphrase = []byte(legacyPassphrase)
	}
	return c, nil
}

// Encrypt seals plaintext and returns its printable ciphertext.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: plaintext is empty", ErrEncryption)
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrEncryption, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return payloadPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt, or a legacy payload.
// An empty plaintext is treated as corruption.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("%w: ciphertext is empty", ErrDecryption)
	}

	var (
		plain []byte
		err   error
	)
	if strings.HasPrefix(ciphertext, payloadPrefix) {
		plain, err = c.open(strings.TrimPrefix(ciphertext, payloadPrefix))
	} else if c.legacyPassphrase != nil {
		plain, err = decryptLegacy(ciphertext, c.legacyPassphrase)
	} else {
		err = errors.New("unrecognized payload format")
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(plain) == 0 {
		return "", fmt.Errorf("%w: empty plaintext", ErrDecryption)
	}
	return string(plain), nil
}

func (c *Codec) open(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, errors.New("payload too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, nil)
}
