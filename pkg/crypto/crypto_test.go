package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, legacy string) *Codec {
	t.Helper()
	c, err := NewCodec("unit-test-secret", legacy)
	require.NoError(t, err)
	return c
}

// encryptLegacy mirrors the OpenSSL envelope the previous front end produced.
func encryptLegacy(t *testing.T, plaintext, passphrase string, salt []byte) string {
	t.Helper()
	key, iv := evpBytesToKey([]byte(passphrase), salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	raw := append(append(append([]byte{}, legacyMagic...), salt...), out...)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewCodec(t *testing.T) {
	t.Run("Should reject empty secret", func(t *testing.T) {
		_, err := NewCodec("", "")
		assert.ErrorIs(t, err, ErrEmptySecret)
	})
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t, "")

	t.Run("Should decrypt what it encrypts", func(t *testing.T) {
		for _, s := range []string{"SKU-1", "a", "產品-42", strings.Repeat("x", 4096)} {
			ct, err := c.Encrypt(s)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ct, payloadPrefix))
			pt, err := c.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, s, pt)
		}
	})

	t.Run("Should use a fresh nonce per call", func(t *testing.T) {
		a, err := c.Encrypt("SKU-1")
		require.NoError(t, err)
		b, err := c.Encrypt("SKU-1")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Should reject empty plaintext", func(t *testing.T) {
		_, err := c.Encrypt("")
		assert.ErrorIs(t, err, ErrEncryption)
	})
}

func TestCodec_DecryptFailures(t *testing.T) {
	c := newTestCodec(t, "")

	t.Run("Should reject empty ciphertext", func(t *testing.T) {
		_, err := c.Decrypt("")
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("Should reject malformed ciphertext", func(t *testing.T) {
		for _, in := range []string{"v2:!!!", "v2:AAAA", "not-a-payload"} {
			_, err := c.Decrypt(in)
			assert.ErrorIs(t, err, ErrDecryption, in)
		}
	})

	t.Run("Should detect tampering", func(t *testing.T) {
		ct, err := c.Encrypt("SKU-1")
		require.NoError(t, err)
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ct, payloadPrefix))
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		_, err = c.Decrypt(payloadPrefix + base64.RawURLEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("Should reject payloads sealed with another key", func(t *testing.T) {
		other, err := NewCodec("another-secret", "")
		require.NoError(t, err)
		ct, err := other.Encrypt("SKU-1")
		require.NoError(t, err)
		_, err = c.Decrypt(ct)
		assert.ErrorIs(t, err, ErrDecryption)
	})
}

func TestCodec_Legacy(t *testing.T) {
	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	t.Run("Should read legacy payloads when passphrase is configured", func(t *testing.T) {
		c := newTestCodec(t, "old-passphrase")
		pt, err := c.Decrypt(encryptLegacy(t, "SKU-LEGACY", "old-passphrase", salt))
		require.NoError(t, err)
		assert.Equal(t, "SKU-LEGACY", pt)
	})

	t.Run("Should refuse legacy payloads without passphrase", func(t *testing.T) {
		c := newTestCodec(t, "")
		_, err := c.Decrypt(encryptLegacy(t, "SKU-LEGACY", "old-passphrase", salt))
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("Should fail on wrong legacy passphrase", func(t *testing.T) {
		c := newTestCodec(t, "wrong")
		pt, err := c.Decrypt(encryptLegacy(t, "SKU-LEGACY", "old-passphrase", salt))
		if err == nil {
			// CBC has no integrity check; a wrong key only shows as garbage.
			assert.NotEqual(t, "SKU-LEGACY", pt)
			return
		}
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("Should treat empty legacy plaintext as corruption", func(t *testing.T) {
		c := newTestCodec(t, "old-passphrase")
		_, err := c.Decrypt(encryptLegacy(t, "", "old-passphrase", salt))
		assert.ErrorIs(t, err, ErrDecryption)
	})
}
