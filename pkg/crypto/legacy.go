package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"errors"
)

// Legacy payloads use the OpenSSL "Salted__" envelope: AES-256-CBC with
// PKCS#7 padding, key and IV derived from a passphrase via EVP_BytesToKey(MD5).

var legacyMagic = []byte("Salted__")

const legacySaltLen = 8

func decryptLegacy(encoded string, passphrase []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) < len(legacyMagic)+legacySaltLen+aes.BlockSize || !bytes.HasPrefix(raw, legacyMagic) {
		return nil, errors.New("malformed legacy payload")
	}
	salt := raw[len(legacyMagic) : len(legacyMagic)+legacySaltLen]
	body := raw[len(legacyMagic)+legacySaltLen:]
	if len(body)%aes.BlockSize != 0 {
		return nil, errors.New("legacy payload is not block aligned")
	}

	key, iv := evpBytesToKey(passphrase, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return pkcs7Unpad(out, aes.BlockSize)
}

func evpBytesToKey(passphrase, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var (
		derived []byte
		prev    []byte
	)
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
