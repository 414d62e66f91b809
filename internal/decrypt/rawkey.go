package decrypt

import (
	"crypto/aes"
	"encoding/base64"
	"unicode/utf8"

	"topster/internal/errs"
)

// DecryptWithKey decrypts a base64 payload using key directly as AES key
// material in ECB mode. Payloads carrying a "Salted__" header, or keys that
// are not a valid AES length, fall back to the passphrase derivation of
// DecryptSalted.
func DecryptWithKey(payload, key string) (string, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return "", errs.Decryption("payload is not base64", err)
	}

	if len(raw) >= len(saltedMagic) && string(raw[:len(saltedMagic)]) == saltedMagic {
		return DecryptSalted(payload, key)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return DecryptSalted(payload, key)
	}

	plain, err := decryptECB(raw, []byte(key))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errs.Decryption("decrypted payload is not UTF-8", nil)
	}
	return string(plain), nil
}

// SealWithKey is the inverse of DecryptWithKey for raw AES keys.
func SealWithKey(plaintext, key string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", errs.Decryption("creating cipher", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptECB decrypts block by block; crypto/cipher ships no ECB mode.
func decryptECB(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errs.Decryption("ciphertext is not a positive multiple of the block size", nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Decryption("creating cipher", err)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return pkcs7Unpad(out, aes.BlockSize)
}
