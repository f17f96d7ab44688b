package nostr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// GetNip04SharedSecret derives the legacy ECDH secret: the shared point's X
// coordinate left-padded to 32 bytes (no hashing, per the original scheme).
func GetNip04SharedSecret(privKeyHex, pubKeyHex string) ([]byte, error) {
	privKey, err := parsePrivKeyHex(privKeyHex)
	if err != nil {
		return nil, err
	}
	pubKey, err := parsePubKeyHex(pubKeyHex)
	if err != nil {
		return nil, err
	}
	shared := btcec.GenerateSharedSecret(privKey, pubKey)
	if len(shared) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(shared):], shared)
		return padded, nil
	}
	return shared[:32], nil
}

// Nip04Encrypt encrypts plaintext with AES-256-CBC and renders the legacy
// "<ciphertext>?iv=<iv>" payload, both parts base64.
func Nip04Encrypt(plaintext, privKeyHex, pubKeyHex string) (string, error) {
	shared, err := GetNip04SharedSecret(privKeyHex, pubKeyHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(shared)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Nip04Decrypt decrypts the legacy "<ciphertext>?iv=<iv>" payload.
func Nip04Decrypt(content, privKeyHex, pubKeyHex string) (string, error) {
	parts := strings.Split(content, "?iv=")
	if len(parts) != 2 {
		return "", errors.New("missing iv")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext base64: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid iv base64: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("invalid iv length: %d", len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a block multiple")
	}
	shared, err := GetNip04SharedSecret(privKeyHex, pubKeyHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(shared)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
