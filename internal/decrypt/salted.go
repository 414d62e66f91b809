package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"topster/internal/errs"
)

const (
	saltedMagic = "Salted__"
	saltLen     = 8
	keyLen      = 32
)

// DecryptSalted decrypts an OpenSSL-compatible base64 payload. When the
// payload starts with "Salted__" the next 8 bytes are the salt; key and IV
// come from EVP_BytesToKey(MD5) over password||salt. Payloads without the
// header are treated as bare ciphertext with an unsalted derivation.
func DecryptSalted(payload, password string) (string, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return "", errs.Decryption("payload is not base64", err)
	}

	var salt, ciphertext []byte
	if len(raw) >= len(saltedMagic)+saltLen && string(raw[:len(saltedMagic)]) == saltedMagic {
		salt = raw[len(saltedMagic) : len(saltedMagic)+saltLen]
		ciphertext = raw[len(saltedMagic)+saltLen:]
	} else {
		ciphertext = raw
	}

	key, iv := evpBytesToKey([]byte(password), salt, keyLen, aes.BlockSize)
	plain, err := decryptCBC(ciphertext, key, iv)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errs.Decryption("decrypted payload is not UTF-8", nil)
	}
	return string(plain), nil
}

// SealSalted is the inverse of DecryptSalted. A nil salt draws 8 random bytes.
func SealSalted(plaintext, password string, salt []byte) (string, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("generating salt: %w", err)
		}
	}
	if len(salt) != saltLen {
		return "", fmt.Errorf("salt must be %d bytes, got %d", saltLen, len(salt))
	}

	key, iv := evpBytesToKey([]byte(password), salt, keyLen, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	buf := make([]byte, 0, len(saltedMagic)+saltLen+len(out))
	buf = append(buf, saltedMagic...)
	buf = append(buf, salt...)
	buf = append(buf, out...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// evpBytesToKey is OpenSSL's legacy derivation with MD5 and one iteration:
// D_0 = MD5(password||salt), D_i = MD5(D_{i-1}||password||salt).
func evpBytesToKey(password, salt []byte, keySize, ivSize int) (key, iv []byte) {
	var derived, prev []byte
	for len(derived) < keySize+ivSize {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keySize], derived[keySize : keySize+ivSize]
}

func decryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errs.Decryption(fmt.Sprintf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext)), nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Decryption("creating cipher", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errs.Decryption("invalid padded length", nil)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errs.Decryption("invalid padding", nil)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errs.Decryption("invalid padding", nil)
		}
	}
	return data[:len(data)-n], nil
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
